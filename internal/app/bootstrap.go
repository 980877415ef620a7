package app

import (
	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/browser"
	"github.com/dshills/linkbrowser/internal/builtin"
	"github.com/dshills/linkbrowser/internal/config"
	"github.com/dshills/linkbrowser/internal/document"
	"github.com/dshills/linkbrowser/internal/logging"
	"github.com/dshills/linkbrowser/internal/metrics"
	"github.com/dshills/linkbrowser/internal/plugin"
	"github.com/dshills/linkbrowser/internal/ui"
)

// bootstrapper handles application initialization.
type bootstrapper struct {
	app       *Application
	initOrder []string
}

// bootstrap initializes all application components.
// Components are initialized in dependency order; on failure the ones
// already built are torn down in reverse.
func (app *Application) bootstrap() error {
	b := &bootstrapper{app: app}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"config", b.initConfig},
		{"logging", b.initLogging},
		{"metrics", b.initMetrics},
		{"view", b.initView},
		{"browser", b.initBrowser},
		{"plugins", b.initPlugins},
		{"watcher", b.initWatcher},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			b.cleanup()
			return &InitError{Component: step.name, Err: err}
		}
	}
	return nil
}

// initConfig loads the config file and applies command-line overrides.
func (b *bootstrapper) initConfig() error {
	path := b.app.opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if b.app.opts.PluginsDir != "" {
		cfg.Plugins.Dir = config.ExpandHome(b.app.opts.PluginsDir)
	}
	if b.app.opts.LogLevel != "" {
		cfg.Logging.Level = b.app.opts.LogLevel
	}

	b.app.configPath = path
	b.app.cfg = cfg
	b.initOrder = append(b.initOrder, "config")
	return nil
}

// initLogging logs to the configured file in terminal mode so log lines do
// not corrupt the screen, and to LogOutput or stderr when headless.
func (b *bootstrapper) initLogging() error {
	lc := b.app.cfg.Logging
	cfg := logging.Config{Level: lc.Level, Format: lc.Format}
	if b.app.opts.Headless {
		cfg.Output = b.app.opts.LogOutput
	} else {
		cfg.File = lc.File
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	b.app.log = logger
	logger.Info("starting",
		zap.String("config", b.app.configPath),
		zap.String("plugins", b.app.cfg.Plugins.Dir),
		zap.Bool("headless", b.app.opts.Headless),
	)
	b.initOrder = append(b.initOrder, "logging")
	return nil
}

func (b *bootstrapper) initMetrics() error {
	b.app.metrics = metrics.New()
	b.initOrder = append(b.initOrder, "metrics")
	return nil
}

// initView opens the terminal, or a headless view.
func (b *bootstrapper) initView() error {
	logger := b.app.log.Named("ui")
	if b.app.opts.Headless {
		b.app.view = ui.NewHeadless(logger, nil)
		b.initOrder = append(b.initOrder, "view")
		return nil
	}

	term, err := ui.NewTerminal(b.app.opts.Screen, ui.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := term.Init(); err != nil {
		return err
	}
	b.app.view = term
	b.initOrder = append(b.initOrder, "view")
	return nil
}

// initBrowser builds the download manager, the browser and its document
// engine, and routes terminal commands to it.
func (b *bootstrapper) initBrowser() error {
	cfg := b.app.cfg
	logger := b.app.log.Logger
	view := b.app.view

	downloads := browser.NewDownloads(cfg.Downloads.Dir,
		browser.WithUserAgent(cfg.Document.UserAgent),
		browser.WithDownloadLogger(logger.Named("downloads")),
		browser.WithDownloadMetrics(b.app.metrics),
		browser.WithProgress(func(p browser.Progress) {
			view.SetStatus(p.String())
		}),
	)

	fetcher := b.app.opts.Fetcher
	if fetcher == nil {
		fetcher = &document.HTTPFetcher{UserAgent: cfg.Document.UserAgent}
	}

	br, err := browser.New(view, downloads,
		browser.WithLogger(logger.Named("browser")),
		browser.WithMetrics(b.app.metrics),
		browser.WithFetcher(fetcher),
		browser.WithScriptTimeout(cfg.Document.ScriptTimeout.Std()),
		browser.WithFlash(cfg.Document.Flash, b.app.saveFlash),
	)
	if err != nil {
		return err
	}
	b.app.browser = br

	if term, ok := view.(*ui.Terminal); ok {
		term.SetController(br)
	}
	b.initOrder = append(b.initOrder, "browser")
	return nil
}

// initPlugins builds the loader and manager. Loading starts in Run.
func (b *bootstrapper) initPlugins() error {
	cfg := b.app.cfg.Plugins
	view := b.app.view

	factories := plugin.NewFactories()
	builtin.Install(factories, view.SetStatus)
	b.app.log.Debug("native plugin factories", zap.Strings("ids", factories.IDs()))

	loader := plugin.NewLoader(
		plugin.WithDir(cfg.Dir),
		plugin.WithExtensions(cfg.Extensions...),
		plugin.WithInitTimeout(cfg.InitTimeout.Std()),
		plugin.WithDisabled(cfg.Disabled...),
		plugin.WithLogger(b.app.log.Named("plugins")),
		plugin.WithStatus(view.SetStatus),
		plugin.WithMetrics(b.app.metrics),
		plugin.WithFactories(factories),
	)
	b.app.plugins = plugin.NewManager(loader, b.app.browser.Injector(),
		plugin.WithManagerLogger(b.app.log.Named("plugins")),
		plugin.WithManagerMetrics(b.app.metrics),
		plugin.WithShutdownTimeout(cfg.ShutdownTimeout.Std()),
	)
	b.app.plugins.Subscribe(func(ev plugin.ManagerEvent) {
		b.app.log.Debug("plugin event",
			zap.Stringer("type", ev.Type),
			zap.String("plugin", ev.Plugin),
			zap.Error(ev.Error),
		)
	})
	b.initOrder = append(b.initOrder, "plugins")
	return nil
}

// initWatcher reloads the config file on change. A watcher that cannot be
// created is logged and skipped.
func (b *bootstrapper) initWatcher() error {
	w, err := config.NewLoader().Watch(b.app.configPath, b.app.reloadConfig)
	if err != nil {
		b.app.log.Warn("config watcher disabled", zap.Error(err))
		return nil
	}
	b.app.watcher = w
	b.initOrder = append(b.initOrder, "watcher")
	return nil
}

// cleanup performs cleanup in reverse initialization order.
// Called when bootstrap fails partway through.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.cleanupComponent(b.initOrder[i])
	}
}

// cleanupComponent cleans up a single component.
func (b *bootstrapper) cleanupComponent(component string) {
	switch component {
	case "watcher":
		_ = b.app.watcher.Stop()
		b.app.watcher = nil
	case "plugins":
		_ = b.app.plugins.ShutdownAll()
		b.app.plugins = nil
	case "browser":
		_ = b.app.browser.Close()
		b.app.browser = nil
	case "view":
		_ = b.app.view.Close()
		b.app.view = nil
	case "logging":
		_ = b.app.log.Close()
	}
}

// reloadConfig applies a reloaded config file. Only the log level takes
// effect without a restart.
func (app *Application) reloadConfig(cfg *config.Config, err error) {
	if err != nil {
		app.log.Warn("config reload failed", zap.Error(err))
		return
	}

	app.mu.Lock()
	if app.opts.LogLevel != "" {
		cfg.Logging.Level = app.opts.LogLevel
	}
	if app.opts.PluginsDir != "" {
		cfg.Plugins.Dir = app.cfg.Plugins.Dir
	}
	app.cfg = cfg
	app.mu.Unlock()

	app.log.SetLevel(cfg.Logging.Level)
	app.log.Info("config reloaded", zap.String("level", app.log.Level().String()))
}

// saveFlash persists the flash setting toggled from link://settings.
func (app *Application) saveFlash(enabled bool) {
	app.mu.Lock()
	app.cfg.Document.Flash = enabled
	snapshot := *app.cfg
	app.mu.Unlock()

	if err := config.Save(app.configPath, &snapshot); err != nil {
		app.log.Warn("save config failed", zap.Error(err))
		return
	}
	app.log.Info("flash setting saved", zap.Bool("enabled", enabled))
}
