package ui

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/bridge"
	"github.com/dshills/linkbrowser/internal/document"
)

// Headless is a View with no screen. Its UI thread is a task loop, its
// geometry never resolves, and menus and status text go to the logger.
type Headless struct {
	loop   *document.Loop
	logger *zap.Logger

	mu     sync.Mutex
	status string
	title  string
	url    string
	menus  []*bridge.Menu
	onStat func(string)
}

// NewHeadless creates a headless view. onStatus, when set, also receives
// every status message.
func NewHeadless(logger *zap.Logger, onStatus func(string)) *Headless {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Headless{
		loop:   document.NewLoop(logger),
		logger: logger,
		onStat: onStatus,
	}
}

// Run drains posted tasks until ctx is done or Close is called.
func (h *Headless) Run(ctx context.Context) error {
	h.loop.Run(ctx)
	return nil
}

// Do runs fn on the headless UI thread and waits for it.
func (h *Headless) Do(ctx context.Context, fn func() error) error {
	return h.loop.Do(ctx, fn)
}

// Post runs fn on the headless UI thread.
func (h *Headless) Post(fn func()) error {
	if err := h.loop.Post(fn); err != nil {
		return ErrClosed
	}
	return nil
}

// LocalToScreen never resolves without a screen.
func (h *Headless) LocalToScreen(float64, float64) (int, int, bool) {
	return 0, 0, false
}

// Show records m. Headless menus are never displayed.
func (h *Headless) Show(m *bridge.Menu) {
	h.mu.Lock()
	h.menus = append(h.menus, m)
	h.mu.Unlock()
	h.logger.Info("context menu", zap.Strings("items", m.Labels()))
}

// Hide is a no-op.
func (h *Headless) Hide(*bridge.Menu) {}

// SetStatus logs msg.
func (h *Headless) SetStatus(msg string) {
	h.mu.Lock()
	h.status = msg
	fn := h.onStat
	h.mu.Unlock()
	h.logger.Info(msg, zap.String("source", "status"))
	if fn != nil {
		fn(msg)
	}
}

// Status returns the last status message.
func (h *Headless) Status() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// ShowPage logs the page.
func (h *Headless) ShowPage(title, url string, elements []document.Element) {
	h.mu.Lock()
	h.title, h.url = title, url
	h.mu.Unlock()
	h.logger.Info("page",
		zap.String("title", title),
		zap.String("url", url),
		zap.Int("elements", len(elements)),
	)
}

// Page returns the last shown title and URL.
func (h *Headless) Page() (title, url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.title, h.url
}

// Close stops the loop.
func (h *Headless) Close() error {
	h.loop.Close()
	return nil
}

var (
	_ View = (*Headless)(nil)
	_ View = (*Terminal)(nil)
)
