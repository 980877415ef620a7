package ui

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/bridge"
	"github.com/dshills/linkbrowser/internal/document"
)

// quitEvent stops Run.
type quitEvent struct{}

// Terminal is the tcell front end.
type Terminal struct {
	screen     tcell.Screen
	logger     *zap.Logger
	viewport   *Viewport
	menu       *MenuPresenter
	controller Controller

	mu     sync.Mutex
	status string

	closed   atomic.Bool
	finiOnce sync.Once
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithLogger sets the terminal logger.
func WithLogger(logger *zap.Logger) TerminalOption {
	return func(t *Terminal) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTerminal wraps screen. Pass nil to open the real terminal.
func NewTerminal(screen tcell.Screen, opts ...TerminalOption) (*Terminal, error) {
	if screen == nil {
		var err error
		if screen, err = tcell.NewScreen(); err != nil {
			return nil, fmt.Errorf("open terminal: %w", err)
		}
	}
	t := &Terminal{
		screen:   screen,
		logger:   zap.NewNop(),
		viewport: NewViewport(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.menu = NewMenuPresenter(t.logger, t.draw)
	return t, nil
}

// Init initializes the screen and enables the mouse.
func (t *Terminal) Init() error {
	if err := t.screen.Init(); err != nil {
		return err
	}
	t.screen.EnableMouse()
	t.viewport.SetSplash("LinkBrowser", "", "Loading plugins...")
	t.draw()
	return nil
}

// SetController routes user commands. Call before Run.
func (t *Terminal) SetController(c Controller) {
	t.controller = c
}

// Viewport returns the document viewport.
func (t *Terminal) Viewport() *Viewport {
	return t.viewport
}

// Presenter returns the context-menu presenter.
func (t *Terminal) Presenter() *MenuPresenter {
	return t.menu
}

// Post runs fn on the UI thread.
func (t *Terminal) Post(fn func()) error {
	if t.closed.Load() {
		return ErrClosed
	}
	if err := t.screen.PostEvent(tcell.NewEventInterrupt(fn)); err != nil {
		return fmt.Errorf("post to ui: %w", err)
	}
	return nil
}

// SetStatus replaces the status line.
func (t *Terminal) SetStatus(msg string) {
	t.mu.Lock()
	t.status = msg
	t.mu.Unlock()
	_ = t.Post(t.draw)
}

// Status returns the status line text.
func (t *Terminal) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// ShowPage replaces the viewport contents.
func (t *Terminal) ShowPage(title, url string, elements []document.Element) {
	t.viewport.SetPage(title, url, elements)
	_ = t.Post(t.draw)
}

// LocalToScreen implements bridge.Geometry through the viewport.
func (t *Terminal) LocalToScreen(x, y float64) (int, int, bool) {
	return t.viewport.LocalToScreen(x, y)
}

// Show implements bridge.Presenter.
func (t *Terminal) Show(m *bridge.Menu) {
	t.menu.Show(m)
}

// Hide implements bridge.Presenter.
func (t *Terminal) Hide(m *bridge.Menu) {
	t.menu.Hide(m)
}

// Run is the UI thread. It returns nil when ctx is done or the user quits.
func (t *Terminal) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = t.screen.PostEvent(tcell.NewEventInterrupt(quitEvent{}))
	})
	defer stop()

	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return nil
		}
		if !t.handle(ev) {
			return nil
		}
	}
}

// handle processes one event and reports whether to keep running.
func (t *Terminal) handle(ev tcell.Event) bool {
	switch e := ev.(type) {
	case *tcell.EventInterrupt:
		switch data := e.Data().(type) {
		case quitEvent:
			return false
		case func():
			t.safely(data)
		}
	case *tcell.EventResize:
		t.screen.Sync()
		t.draw()
	case *tcell.EventKey:
		return t.handleKey(e)
	case *tcell.EventMouse:
		t.handleMouse(e)
	}
	return true
}

func (t *Terminal) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("ui task panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func (t *Terminal) handleKey(ev *tcell.EventKey) bool {
	if t.menu.HandleKey(ev) {
		return true
	}

	switch ev.Key() {
	case tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		t.viewport.Move(-1)
		t.draw()
	case tcell.KeyDown:
		t.viewport.Move(1)
		t.draw()
	case tcell.KeyEnter:
		if i := t.viewport.Selected(); i >= 0 {
			t.command("open", func(c Controller) error { return c.Activate(i) })
		}
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'b':
			t.command("back", Controller.Back)
		case 'f':
			t.command("forward", Controller.Forward)
		case 'r':
			t.command("reload", Controller.Reload)
		case 'm':
			if i := t.viewport.Selected(); i >= 0 {
				t.command("menu", func(c Controller) error { return c.ContextMenu(i, 0, float64(i)) })
			}
		}
	}
	return true
}

func (t *Terminal) handleMouse(ev *tcell.EventMouse) {
	buttons := ev.Buttons()
	if buttons == tcell.ButtonNone {
		return
	}
	x, y := ev.Position()

	if buttons&tcell.ButtonPrimary != 0 && t.menu.HandleClick(x, y) {
		return
	}

	index, pageX, pageY, ok := t.viewport.ElementAt(x, y)
	if !ok {
		return
	}
	t.viewport.Select(index)
	t.draw()

	if buttons&tcell.ButtonSecondary != 0 {
		t.command("menu", func(c Controller) error { return c.ContextMenu(index, pageX, pageY) })
	}
}

func (t *Terminal) command(name string, fn func(Controller) error) {
	if t.controller == nil {
		return
	}
	if err := fn(t.controller); err != nil {
		t.logger.Debug("command failed", zap.String("command", name), zap.Error(err))
		t.mu.Lock()
		t.status = err.Error()
		t.mu.Unlock()
		t.draw()
	}
}

// draw repaints the whole screen. UI thread only.
func (t *Terminal) draw() {
	s := t.screen
	s.Clear()
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return
	}

	title, url := t.viewport.Title()
	header := " LinkBrowser"
	if title != "" || url != "" {
		header = " " + title + "  " + url
	}
	fill(s, 0, 0, w, styleHeader)
	drawText(s, 0, 0, w, truncate(header, w), styleHeader)

	t.viewport.Layout(0, 1, w, h-2)
	t.viewport.Draw(s)

	if h > 1 {
		fill(s, 0, h-1, w, styleStatus)
		drawText(s, 1, h-1, w-1, truncate(t.Status(), w-1), styleStatus)
	}

	t.menu.Draw(s)
	s.Show()
}

// Close finalizes the screen. Later Posts fail with ErrClosed.
func (t *Terminal) Close() error {
	t.closed.Store(true)
	t.finiOnce.Do(t.screen.Fini)
	return nil
}
