package browser

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/bridge"
	"github.com/dshills/linkbrowser/internal/document"
	"github.com/dshills/linkbrowser/internal/injection"
	"github.com/dshills/linkbrowser/internal/metrics"
	"github.com/dshills/linkbrowser/internal/ui"
)

// Status messages.
const (
	StatusDone     = "Done"
	StatusBack     = "Going back..."
	StatusForward  = "Going forward..."
	StatusRefresh  = "Refreshing page..."
	StatusFlashOn  = "Flash enabled."
	StatusFlashOff = "Flash disabled."
)

// Browser routes navigation, menu actions and view commands to one
// document engine.
type Browser struct {
	engine    *document.Engine
	registry  *injection.Registry
	menu      *bridge.ContextMenu
	downloads *Downloads
	view      ui.View
	logger    *zap.Logger
	metrics   *metrics.Metrics

	fetcher       document.Fetcher
	scriptTimeout time.Duration
	flash         atomic.Bool
	onFlash       func(bool)

	unsubscribe func()
}

// Option configures a Browser.
type Option func(*Browser)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records navigation, injection and menu counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Browser) {
		b.metrics = m
	}
}

// WithFetcher sets the fetcher for non-internal URLs.
func WithFetcher(f document.Fetcher) Option {
	return func(b *Browser) {
		b.fetcher = f
	}
}

// WithScriptTimeout bounds each script evaluation in the document.
func WithScriptTimeout(d time.Duration) Option {
	return func(b *Browser) {
		b.scriptTimeout = d
	}
}

// WithFlash sets the initial flash setting and a listener for changes.
func WithFlash(enabled bool, onChange func(bool)) Option {
	return func(b *Browser) {
		b.flash.Store(enabled)
		b.onFlash = onChange
	}
}

// New creates a browser drawing into view and saving files through
// downloads. The context-menu bridge is registered before New returns.
func New(view ui.View, downloads *Downloads, opts ...Option) (*Browser, error) {
	b := &Browser{
		view:          view,
		downloads:     downloads,
		logger:        zap.NewNop(),
		fetcher:       &document.HTTPFetcher{},
		scriptTimeout: document.DefaultScriptTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.engine = document.NewEngine(
		document.WithLogger(b.logger.Named("document")),
		document.WithFetcher(NewPages(b.fetcher, b.flash.Load)),
		document.WithScriptTimeout(b.scriptTimeout),
	)
	b.registry = injection.New(b.engine,
		injection.WithLogger(b.logger.Named("injection")),
		injection.WithMetrics(b.metrics),
	)
	b.menu = bridge.NewContextMenu(view, view, view, b,
		bridge.WithLogger(b.logger.Named("contextmenu")),
		bridge.WithMetrics(b.metrics),
		bridge.WithStateListener(func(s bridge.MenuState) {
			b.logger.Debug("context menu state", zap.Stringer("state", s))
		}),
	)

	// Subscribed after the registry so injected scripts are live when the
	// status is pushed into a new document.
	b.unsubscribe = b.engine.Subscribe(b.onTransition)

	if err := bridge.Register(b.registry, b.menu); err != nil {
		b.Close()
		return nil, fmt.Errorf("register context menu: %w", err)
	}
	return b, nil
}

// Engine returns the document engine.
func (b *Browser) Engine() *document.Engine {
	return b.engine
}

// Injector returns the registry plugins register into.
func (b *Browser) Injector() *injection.Registry {
	return b.registry
}

// ContextMenuBridge returns the native context-menu bridge.
func (b *Browser) ContextMenuBridge() *bridge.ContextMenu {
	return b.menu
}

// Downloads returns the download manager.
func (b *Browser) Downloads() *Downloads {
	return b.downloads
}

// Flash reports the flash setting.
func (b *Browser) Flash() bool {
	return b.flash.Load()
}

// Navigate loads raw, routing link:// URLs and likely downloads first.
func (b *Browser) Navigate(raw string) error {
	raw = strings.TrimSpace(raw)
	if IsInternal(raw) {
		return b.route(raw)
	}

	target := NormalizeURL(raw)
	if IsLikelyDownload(target) {
		return b.Download(target)
	}
	b.setStatus("Loading: " + target)
	return b.engine.Navigate(target)
}

// route handles a link:// URL.
func (b *Browser) route(raw string) error {
	switch strings.TrimRight(strings.ToLower(raw), "/") {
	case RouteAbout, AboutURL:
		return b.engine.Navigate(AboutURL)
	case RouteSettings, SettingsURL:
		return b.engine.Navigate(SettingsURL)
	case RouteGitHub:
		return b.Navigate(GitHubURL)
	case RouteFlashOn:
		b.setFlash(true)
		return nil
	case RouteFlashOff:
		b.setFlash(false)
		return nil
	default:
		b.logger.Warn("unhandled url", zap.String("url", raw))
		return fmt.Errorf("%w: %s", ErrUnknownRoute, raw)
	}
}

func (b *Browser) setFlash(enabled bool) {
	b.flash.Store(enabled)
	msg := StatusFlashOff
	if enabled {
		msg = StatusFlashOn
	}
	b.logger.Info(msg)
	b.setStatus(msg)
	if b.onFlash != nil {
		b.onFlash(enabled)
	}
	if b.engine.URL() == SettingsURL {
		_ = b.engine.Reload()
	}
}

// Back implements bridge.Actions and ui.Controller.
func (b *Browser) Back() error {
	if err := b.engine.Back(); err != nil {
		return err
	}
	b.setStatus(StatusBack)
	return nil
}

// Forward implements bridge.Actions and ui.Controller.
func (b *Browser) Forward() error {
	if err := b.engine.Forward(); err != nil {
		return err
	}
	b.setStatus(StatusForward)
	return nil
}

// Reload implements bridge.Actions and ui.Controller.
func (b *Browser) Reload() error {
	if err := b.engine.Reload(); err != nil {
		return err
	}
	b.setStatus(StatusRefresh)
	return nil
}

// Download implements bridge.Actions. Relative URLs resolve against the
// current page.
func (b *Browser) Download(rawURL string) error {
	target := Resolve(b.engine.URL(), rawURL)
	dl, err := b.downloads.Start(target)
	if err != nil {
		b.setStatus(fmt.Sprintf("Download failed: %v", err))
		return err
	}
	b.setStatus("Downloading: " + dl.Name)
	return nil
}

// element returns the element at index with its locators resolved against
// the page URL.
func (b *Browser) element(index int) (document.Element, error) {
	page := b.engine.Page()
	if page == nil || index < 0 || index >= len(page.Elements) {
		return document.Element{}, fmt.Errorf("%w: %d", ErrNoElement, index)
	}
	el := page.Elements[index]
	if el.Href != "" {
		el.Href = Resolve(page.URL, el.Href)
	}
	if el.Src != "" {
		el.Src = Resolve(page.URL, el.Src)
	}
	return el, nil
}

// Activate implements ui.Controller. Links are followed and images opened.
func (b *Browser) Activate(index int) error {
	el, err := b.element(index)
	if err != nil {
		return err
	}
	if el.Href != "" {
		return b.Navigate(el.Href)
	}
	if el.Src != "" {
		return b.Navigate(el.Src)
	}
	return nil
}

// ContextMenu implements ui.Controller by dispatching a contextmenu event to
// the document. Scripts in the page decide what happens next.
func (b *Browser) ContextMenu(index int, pageX, pageY float64) error {
	el, err := b.element(index)
	if err != nil {
		return err
	}
	return b.engine.DispatchEvent(document.Event{
		Type:   "contextmenu",
		Target: el,
		PageX:  pageX,
		PageY:  pageY,
	})
}

// onTransition runs on the engine loop.
func (b *Browser) onTransition(_, next document.NavigationState) {
	b.metrics.RecordNavigation(next.String())

	switch next {
	case document.StateRunning:
		b.view.SetStatus("Loading: " + b.engine.URL())
	case document.StateSucceeded:
		if page := b.engine.Page(); page != nil {
			b.view.ShowPage(page.Title, page.URL, page.Elements)
		}
		b.view.SetStatus(StatusDone)
		b.pushStatus(StatusDone)
	case document.StateFailed:
		b.view.SetStatus("Failed to load: " + b.engine.URL())
	}
}

// setStatus updates the view and the document's status function.
func (b *Browser) setStatus(msg string) {
	b.view.SetStatus(msg)
	_ = b.engine.Post(func() { b.pushStatus(msg) })
}

// pushStatus calls window.updateStatus in the live document. Loop only.
func (b *Browser) pushStatus(msg string) {
	if b.engine.State() != document.StateSucceeded {
		return
	}
	if _, err := b.engine.ExecuteScript(bridge.StatusScript(msg)); err != nil {
		b.logger.Debug("status script failed", zap.Error(err))
	}
}

// Close stops downloads, detaches the registry and closes the engine.
func (b *Browser) Close() error {
	if b.downloads != nil {
		_ = b.downloads.Close()
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.registry.Close()
	return b.engine.Close()
}

var (
	_ bridge.Actions = (*Browser)(nil)
	_ ui.Controller  = (*Browser)(nil)
)
