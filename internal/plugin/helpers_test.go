package plugin

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

// writeArchive writes a zip archive named name into dir.
func writeArchive(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()

	file := filepath.Join(dir, name)
	f, err := os.Create(file)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
		if _, err := w.Write([]byte(files[n])); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return file
}

// luaArchive returns the files of a single-entry Lua archive whose plugin
// registers script under its name.
func luaArchive(name, script string) map[string]string {
	return map[string]string{
		"plugin.json": `{"name": "` + name + `", "version": "1.0.0", "description": "test"}`,
		"init.lua": `
return {
  name = "` + name + `",
  initialize = function(host)
    host.add_script([[` + script + `]])
  end,
  shutdown = function() end,
}`,
	}
}

// recordingInjector records registrations in order.
type recordingInjector struct {
	mu      sync.Mutex
	scripts []string
	bridges map[string]any
	order   []string
	reject  bool
}

func newRecordingInjector() *recordingInjector {
	return &recordingInjector{bridges: make(map[string]any)}
}

func (r *recordingInjector) AddScript(script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return errors.New("rejected")
	}
	r.scripts = append(r.scripts, script)
	r.order = append(r.order, "script")
	return nil
}

func (r *recordingInjector) AddBridge(name string, obj any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return errors.New("rejected")
	}
	r.bridges[name] = obj
	r.order = append(r.order, "bridge:"+name)
	return nil
}

func (r *recordingInjector) Scripts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.scripts...)
}

func (r *recordingInjector) Bridge(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.bridges[name]
	return obj, ok
}

// statusLog collects status messages.
type statusLog struct {
	mu   sync.Mutex
	msgs []string
}

func (s *statusLog) add(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *statusLog) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func (s *statusLog) contains(msg string) bool {
	for _, m := range s.all() {
		if m == msg {
			return true
		}
	}
	return false
}

// nativePlugin is a configurable native plugin.
type nativePlugin struct {
	name        string
	script      string
	initErr     error
	initPanic   bool
	block       chan struct{}
	shutdownErr error

	mu        sync.Mutex
	inits     int
	shutdowns int
	onStop    func(name string)
}

func (p *nativePlugin) Name() string        { return p.name }
func (p *nativePlugin) Version() string     { return "1.0.0" }
func (p *nativePlugin) Description() string { return "native test plugin" }

func (p *nativePlugin) Initialize(host Host) error {
	p.mu.Lock()
	p.inits++
	p.mu.Unlock()

	if p.script != "" {
		host.AddScript(p.script)
	}
	if p.initPanic {
		panic("init exploded")
	}
	if p.block != nil {
		<-p.block
	}
	return p.initErr
}

func (p *nativePlugin) Shutdown() error {
	p.mu.Lock()
	p.shutdowns++
	stop := p.onStop
	p.mu.Unlock()
	if stop != nil {
		stop(p.name)
	}
	return p.shutdownErr
}

func (p *nativePlugin) shutdownCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdowns
}

// nativeArchive returns the files of an archive with one native entry.
func nativeArchive(name, id string) map[string]string {
	return map[string]string{
		"plugin.yaml": "name: " + name + "\nversion: 1.0.0\nentries:\n  - kind: native\n    id: " + id + "\n",
	}
}
