package bridge

import (
	"errors"
	"sync"
)

// inlineUI runs posted functions immediately.
type inlineUI struct {
	closed bool
}

func (u *inlineUI) Post(fn func()) error {
	if u.closed {
		return errors.New("ui closed")
	}
	fn()
	return nil
}

// fixedGeometry offsets page coordinates, or never resolves.
type fixedGeometry struct {
	ok bool
}

func (g fixedGeometry) LocalToScreen(x, y float64) (int, int, bool) {
	if !g.ok {
		return 0, 0, false
	}
	return int(x) + 1, int(y) + 2, true
}

type recordingPresenter struct {
	mu    sync.Mutex
	shown []*Menu
	hid   []*Menu
}

func (p *recordingPresenter) Show(m *Menu) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, m)
}

func (p *recordingPresenter) Hide(m *Menu) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hid = append(p.hid, m)
}

func (p *recordingPresenter) last() *Menu {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.shown) == 0 {
		return nil
	}
	return p.shown[len(p.shown)-1]
}

type recordingActions struct {
	mu    sync.Mutex
	calls []string
}

func (a *recordingActions) record(s string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, s)
	return nil
}

func (a *recordingActions) Navigate(url string) error { return a.record("navigate " + url) }
func (a *recordingActions) Back() error               { return a.record("back") }
func (a *recordingActions) Forward() error            { return a.record("forward") }
func (a *recordingActions) Reload() error             { return a.record("reload") }
func (a *recordingActions) Download(url string) error { return a.record("download " + url) }

func (a *recordingActions) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}
