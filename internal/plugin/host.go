package plugin

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Injector receives the scripts and bridges plugins register.
// *injection.Registry satisfies it.
type Injector interface {
	AddScript(script string) error
	AddBridge(name string, obj any) error
}

// StatusFunc receives user-visible loader status messages.
type StatusFunc func(msg string)

type hostMode int

const (
	hostBuffering hostMode = iota
	hostLive
	hostRevoked
)

type registration struct {
	bridge bool
	name   string
	script string
	obj    any
}

// pluginHost is the Host handed to one plugin.
//
// Registrations made during Initialize are buffered and only reach the
// injector once Initialize succeeds, so a plugin that fails or times out
// leaves nothing behind. After that they pass straight through.
type pluginHost struct {
	ctx      context.Context
	name     string
	injector Injector
	logger   *zap.Logger
	status   StatusFunc

	mu      sync.Mutex
	mode    hostMode
	pending []registration
}

func newPluginHost(ctx context.Context, name string, injector Injector, logger *zap.Logger, status StatusFunc) *pluginHost {
	if status == nil {
		status = func(string) {}
	}
	return &pluginHost{
		ctx:      ctx,
		name:     name,
		injector: injector,
		logger:   logger,
		status:   status,
	}
}

// Context returns the initialization context.
func (h *pluginHost) Context() context.Context {
	return h.ctx
}

// AddScript registers a script.
func (h *pluginHost) AddScript(script string) {
	h.register(registration{script: script})
}

// AddBridge registers a bridge object.
func (h *pluginHost) AddBridge(name string, obj any) {
	h.register(registration{bridge: true, name: name, obj: obj})
}

// Logger returns the plugin logger.
func (h *pluginHost) Logger() *zap.Logger {
	return h.logger
}

// Status posts a status message.
func (h *pluginHost) Status(msg string) {
	h.status(msg)
}

func (h *pluginHost) register(r registration) {
	h.mu.Lock()
	switch h.mode {
	case hostBuffering:
		h.pending = append(h.pending, r)
		h.mu.Unlock()
	case hostLive:
		h.mu.Unlock()
		_ = h.forward(r)
	default:
		h.mu.Unlock()
		h.logger.Debug("registration after failed initialize ignored", zap.String("bridge", r.name))
	}
}

// commit flushes buffered registrations and switches to pass-through.
func (h *pluginHost) commit() error {
	h.mu.Lock()
	if h.mode != hostBuffering {
		h.mu.Unlock()
		return nil
	}
	h.mode = hostLive
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	var errs []error
	for _, r := range pending {
		if err := h.forward(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// revoke drops buffered registrations and ignores later ones.
func (h *pluginHost) revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = hostRevoked
	h.pending = nil
}

func (h *pluginHost) forward(r registration) error {
	if h.injector == nil {
		return nil
	}
	var err error
	if r.bridge {
		err = h.injector.AddBridge(r.name, r.obj)
	} else {
		err = h.injector.AddScript(r.script)
	}
	if err != nil {
		h.logger.Warn("registration rejected", zap.String("bridge", r.name), zap.Error(err))
	}
	return err
}

// Ensure pluginHost implements Host.
var _ Host = (*pluginHost)(nil)
