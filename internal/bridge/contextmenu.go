package bridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/metrics"
)

// ContextMenuBridgeName is the global name the bridge is bound under.
const ContextMenuBridgeName = "nativeContext"

// Dispatcher runs functions on the UI thread.
type Dispatcher interface {
	Post(fn func()) error
}

// Geometry maps document coordinates to screen coordinates.
// ok is false when the point cannot be resolved.
type Geometry interface {
	LocalToScreen(x, y float64) (sx, sy int, ok bool)
}

// Presenter displays menus. Called on the UI thread.
type Presenter interface {
	Show(m *Menu)
	Hide(m *Menu)
}

// ContextMenu is the bridge object scripts call on right click.
type ContextMenu struct {
	ui        Dispatcher
	geometry  Geometry
	presenter Presenter
	actions   Actions
	logger    *zap.Logger
	metrics   *metrics.Metrics
	onState   func(MenuState)

	mu      sync.Mutex
	state   MenuState
	current *Menu
}

// ContextMenuOption configures a ContextMenu.
type ContextMenuOption func(*ContextMenu)

// WithLogger sets the bridge logger.
func WithLogger(logger *zap.Logger) ContextMenuOption {
	return func(c *ContextMenu) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records menu outcomes.
func WithMetrics(m *metrics.Metrics) ContextMenuOption {
	return func(c *ContextMenu) {
		c.metrics = m
	}
}

// WithStateListener observes every state change.
func WithStateListener(fn func(MenuState)) ContextMenuOption {
	return func(c *ContextMenu) {
		c.onState = fn
	}
}

// NewContextMenu creates the bridge.
func NewContextMenu(ui Dispatcher, geometry Geometry, presenter Presenter, actions Actions, opts ...ContextMenuOption) *ContextMenu {
	c := &ContextMenu{
		ui:        ui,
		geometry:  geometry,
		presenter: presenter,
		actions:   actions,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShowContextMenu is called from script with the clicked element's
// locators. It returns immediately; the menu is built on the UI thread.
func (c *ContextMenu) ShowContextMenu(tagName, src, href string, pageX, pageY float64) {
	t := Target{TagName: tagName, Src: src, Href: href, PageX: pageX, PageY: pageY}
	c.logger.Debug("context menu requested",
		zap.String("tag", tagName),
		zap.Float64("x", pageX),
		zap.Float64("y", pageY),
	)

	c.setState(MenuRequested)
	if err := c.ui.Post(func() { c.show(t) }); err != nil {
		c.logger.Warn("context menu dropped", zap.Error(err))
		c.metrics.RecordMenuDropped()
		c.setState(NoMenu)
	}
}

// show runs on the UI thread.
func (c *ContextMenu) show(t Target) {
	x, y, ok := c.geometry.LocalToScreen(t.PageX, t.PageY)
	if !ok {
		c.metrics.RecordMenuDropped()
		c.mu.Lock()
		shown := c.current != nil
		c.mu.Unlock()
		if shown {
			c.setState(MenuShown)
		} else {
			c.setState(NoMenu)
		}
		return
	}

	c.mu.Lock()
	prev := c.current
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Dismiss()
	}

	m := newMenu(t, c.actions)
	m.X, m.Y = x, y
	m.onClose = c.closed

	c.mu.Lock()
	c.current = m
	c.mu.Unlock()

	c.setState(MenuShown)
	c.presenter.Show(m)
}

// closed records a menu's outcome and returns to NoMenu.
func (c *ContextMenu) closed(m *Menu, outcome MenuState, label string) {
	c.mu.Lock()
	current := c.current == m
	if current {
		c.current = nil
	}
	c.mu.Unlock()

	c.presenter.Hide(m)
	if outcome == ActionSelected {
		c.metrics.RecordMenuAction(label)
		c.logger.Debug("context menu action", zap.String("item", label))
	}
	if current {
		c.setState(outcome)
		c.setState(NoMenu)
	}
}

// Current returns the shown menu, or nil.
func (c *ContextMenu) Current() *Menu {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the current menu state.
func (c *ContextMenu) State() MenuState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ContextMenu) setState(s MenuState) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
