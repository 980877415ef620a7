package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func collect(t *testing.T, w *Watcher) <-chan Event {
	t.Helper()
	ch := make(chan Event, 16)
	w.OnChange(func(ev Event) { ch <- ev })
	return ch
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	w, err := New(WithDebounce(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	events := collect(t, w)
	w.Start()

	// Writes to other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := next(t, events)
	if ev.Path != path {
		t.Errorf("event path = %q, want %q", ev.Path, path)
	}
	if ev.Op != OpCreate {
		t.Errorf("first op = %v, want create", ev.Op)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	for {
		ev := next(t, events)
		if ev.Op == OpRemove {
			break
		}
	}
}

func TestWatcherDebounceCoalesces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	w, err := New(WithDebounce(50 * time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Stop()
	if err := w.Watch(path); err != nil {
		t.Fatal(err)
	}
	events := collect(t, w)
	w.Start()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ev := next(t, events)
	if ev.Op != OpCreate {
		t.Errorf("coalesced op = %v, want create", ev.Op)
	}
	select {
	case extra := <-events:
		t.Errorf("unexpected second event %v", extra.Op)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestQueueEventCoalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"create then write", []Operation{OpCreate, OpWrite}, OpCreate},
		{"write then write", []Operation{OpWrite, OpWrite}, OpWrite},
		{"write then remove", []Operation{OpWrite, OpRemove}, OpRemove},
		{"remove then create", []Operation{OpRemove, OpCreate}, OpWrite},
		{"rename then create", []Operation{OpRename, OpCreate}, OpWrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Watcher{pendingFiles: make(map[string]pendingEvent)}
			for _, op := range tt.ops {
				w.queueEvent(Event{Path: "/f", Op: op, Time: time.Now()})
			}
			if got := w.pendingFiles["/f"].Op; got != tt.want {
				t.Errorf("pending op = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(filepath.Join(dir, "a")); err != nil {
		t.Fatal(err)
	}
	if len(w.WatchedFiles()) != 1 {
		t.Errorf("WatchedFiles() = %v", w.WatchedFiles())
	}
	w.Start()
	if !w.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if w.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := w.Watch(filepath.Join(dir, "b")); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Watch() after Stop = %v, want ErrWatcherClosed", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestOperationString(t *testing.T) {
	for op, want := range map[Operation]string{
		OpWrite: "write", OpCreate: "create", OpRemove: "remove", OpRename: "rename", Operation(9): "unknown",
	} {
		if got := op.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", op, got, want)
		}
	}
}
