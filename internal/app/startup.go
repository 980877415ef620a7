package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/linkbrowser/internal/plugin"
)

// StatusPluginsReady is shown once plugin loading and the splash are done.
const StatusPluginsReady = "Plugins ready"

// startup loads plugins while the splash is up, then opens the first page.
// It closes ready when done.
func (app *Application) startup(ctx context.Context) {
	defer close(app.ready)
	defer func() {
		if r := recover(); r != nil {
			err := &RecoveredPanicError{Value: r, Stack: string(debug.Stack())}
			app.log.Error("startup panicked", zap.Error(err))
			app.startErr = fmt.Errorf("startup panicked: %v", r)
		}
	}()

	app.startErr = app.start(ctx)
	if app.startErr != nil {
		app.log.Warn("startup stopped", zap.Error(app.startErr))
	}
}

func (app *Application) start(ctx context.Context) error {
	cfg := app.Config()
	began := time.Now()

	var res plugin.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res, err = app.plugins.Load(gctx)
		return err
	})
	g.Go(func() error {
		return splash(gctx, cfg.Startup.MinSplash.Std())
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// Load failures are per plugin and never stop startup.
	app.log.Info("plugins ready",
		zap.Int("archives", res.Archives),
		zap.Int("loaded", len(res.Loaded)),
		zap.Int("failed", len(res.Failures)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("elapsed", time.Since(began)),
	)
	for _, f := range res.Failures {
		app.log.Debug("plugin failure", zap.Error(f))
	}
	app.view.SetStatus(StatusPluginsReady)

	first := app.opts.URL
	if first == "" {
		first = cfg.Startup.HomePage
	}
	if err := app.browser.Navigate(first); err != nil {
		return fmt.Errorf("open %s: %w", first, err)
	}
	return nil
}

// splash waits at least d so the splash screen is readable.
func splash(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
