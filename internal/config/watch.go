package config

import (
	"github.com/dshills/linkbrowser/internal/config/watcher"
)

// ReloadFunc receives a reloaded config, or the error that prevented
// loading it. The previous config stays in effect on error.
type ReloadFunc func(cfg *Config, err error)

// Watch reloads path whenever it is written or replaced and passes the
// result to fn. Call Stop on the returned watcher when done.
func (l *Loader) Watch(path string, fn ReloadFunc, opts ...watcher.Option) (*watcher.Watcher, error) {
	w, err := watcher.New(opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}

	w.OnChange(func(ev watcher.Event) {
		switch ev.Op {
		case watcher.OpRemove, watcher.OpRename:
			return
		}
		fn(l.Load(path))
	})
	w.Start()
	return w, nil
}
