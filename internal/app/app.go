// Package app wires configuration, logging, the view, the browser and the
// plugin manager together and runs the startup sequence.
package app

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/browser"
	"github.com/dshills/linkbrowser/internal/config"
	"github.com/dshills/linkbrowser/internal/config/watcher"
	"github.com/dshills/linkbrowser/internal/document"
	"github.com/dshills/linkbrowser/internal/logging"
	"github.com/dshills/linkbrowser/internal/metrics"
	"github.com/dshills/linkbrowser/internal/plugin"
	"github.com/dshills/linkbrowser/internal/ui"
)

// Options configures the application. Zero values fall back to the
// configuration file.
type Options struct {
	// ConfigPath is the TOML config file. Defaults to config.DefaultPath().
	ConfigPath string

	// PluginsDir overrides plugins.dir.
	PluginsDir string

	// LogLevel overrides logging.level.
	LogLevel string

	// Headless runs without a terminal; status and pages go to the log.
	Headless bool

	// URL replaces startup.home_page as the first page.
	URL string

	// Screen replaces the real terminal. Ignored when Headless is set.
	Screen tcell.Screen

	// Fetcher replaces the HTTP fetcher for non-internal pages.
	Fetcher document.Fetcher

	// LogOutput receives headless logs. Defaults to stderr.
	LogOutput io.Writer
}

// Application owns every long-lived component.
type Application struct {
	opts       Options
	configPath string

	mu  sync.Mutex
	cfg *config.Config

	log     *logging.Logger
	metrics *metrics.Metrics
	view    ui.View
	browser *browser.Browser
	plugins *plugin.Manager
	watcher *watcher.Watcher

	startOnce sync.Once
	ready     chan struct{}
	startErr  error

	running      atomic.Bool
	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds the application. Nothing is shown and no plugin is loaded
// until Run.
func New(opts Options) (*Application, error) {
	app := &Application{
		opts:  opts,
		ready: make(chan struct{}),
	}
	if err := app.bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Config returns a copy of the active configuration.
func (app *Application) Config() config.Config {
	app.mu.Lock()
	defer app.mu.Unlock()
	return *app.cfg
}

// ConfigPath returns the config file in use.
func (app *Application) ConfigPath() string {
	return app.configPath
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.log
}

// Metrics returns the metrics registry.
func (app *Application) Metrics() *metrics.Metrics {
	return app.metrics
}

// View returns the front end.
func (app *Application) View() ui.View {
	return app.view
}

// Browser returns the browser controller.
func (app *Application) Browser() *browser.Browser {
	return app.browser
}

// Plugins returns the plugin manager.
func (app *Application) Plugins() *plugin.Manager {
	return app.plugins
}

// Ready is closed once plugins are loaded, the splash time has passed and
// the first page was requested.
func (app *Application) Ready() <-chan struct{} {
	return app.ready
}

// StartupErr returns the startup error after Ready is closed.
func (app *Application) StartupErr() error {
	select {
	case <-app.ready:
		return app.startErr
	default:
		return nil
	}
}

// IsRunning reports whether Run is active.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Run starts the startup sequence in the background and runs the UI thread
// until ctx is done or the user quits.
func (app *Application) Run(ctx context.Context) error {
	if app.closed.Load() {
		return ErrClosed
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if addr := app.Config().Metrics.Addr; addr != "" {
		srv, err := app.serveDebug(addr)
		if err != nil {
			return &InitError{Component: "debug", Err: err}
		}
		defer srv.stop()
	}

	app.startOnce.Do(func() { go app.startup(ctx) })

	err := app.view.Run(ctx)
	cancel()
	<-app.ready
	return err
}

// Shutdown stops plugins, downloads, the browser and the view, in that
// order. It is safe to call more than once.
func (app *Application) Shutdown() error {
	app.shutdownOnce.Do(func() {
		app.closed.Store(true)
		app.shutdownErr = app.shutdown()
	})
	return app.shutdownErr
}

func (app *Application) shutdown() error {
	var errs ErrorList

	if app.watcher != nil {
		errs.Add(componentError("config", "stop watcher", app.watcher.Stop()))
	}
	if app.plugins != nil {
		errs.Add(componentError("plugins", "shutdown", app.plugins.ShutdownAll()))
	}
	if app.browser != nil {
		errs.Add(componentError("browser", "close", app.browser.Close()))
	}
	if app.view != nil {
		errs.Add(componentError("view", "close", app.view.Close()))
	}

	if errs.Len() > 0 {
		app.log.Warn("shutdown finished with errors", zap.Error(errs.AsError()))
	} else {
		app.log.Info("shutdown complete")
	}
	_ = app.log.Close()
	return errs.AsError()
}
