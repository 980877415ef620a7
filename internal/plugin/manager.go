package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/metrics"
)

// DefaultShutdownTimeout bounds a single plugin's Shutdown call.
const DefaultShutdownTimeout = 5 * time.Second

// Manager owns the list of loaded plugins. It runs the loader in the
// background and shuts plugins down in load order.
type Manager struct {
	mu sync.RWMutex

	loader   *Loader
	injector Injector
	logger   *zap.Logger
	metrics  *metrics.Metrics

	shutdownTimeout time.Duration

	// Loaded plugins in load order
	plugins []*Loaded

	// Event handlers (protected by mu)
	eventHandlers []EventHandler

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	result  Result
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerMetrics records the active plugin count.
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithShutdownTimeout bounds each Shutdown call. Zero waits indefinitely.
func WithShutdownTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.shutdownTimeout = d
	}
}

// EventHandler handles plugin manager events.
// Handlers must be non-blocking and should not call back into the Manager
// to avoid deadlocks. Panics in handlers are recovered.
type EventHandler func(event ManagerEvent)

// ManagerEvent represents a plugin manager event.
type ManagerEvent struct {
	Type   ManagerEventType
	Plugin string
	Error  error
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventPluginLoaded is emitted when a plugin finishes Initialize.
	EventPluginLoaded ManagerEventType = iota
	// EventPluginFailed is emitted for each archive or entry that failed.
	EventPluginFailed
	// EventPluginShutdown is emitted after a plugin's Shutdown.
	EventPluginShutdown
	// EventLoadComplete is emitted when a load pass ends.
	EventLoadComplete
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventPluginLoaded:
		return "loaded"
	case EventPluginFailed:
		return "failed"
	case EventPluginShutdown:
		return "shutdown"
	case EventLoadComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// NewManager creates a manager that loads through loader and registers with
// injector.
func NewManager(loader *Loader, injector Injector, opts ...ManagerOption) *Manager {
	m := &Manager{
		loader:          loader,
		injector:        injector,
		logger:          zap.NewNop(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start loads all plugins in the background. The returned channel receives
// the result once and is then closed.
func (m *Manager) Start(ctx context.Context) (<-chan Result, error) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	out := make(chan Result, 1)
	go func() {
		defer close(done)
		defer close(out)

		res := m.loader.LoadEach(ctx, m.injector, m.add)
		for _, f := range res.Failures {
			m.emitEvent(ManagerEvent{Type: EventPluginFailed, Plugin: f.Archive, Error: f})
		}

		m.mu.Lock()
		m.result = res
		m.mu.Unlock()

		m.emitEvent(ManagerEvent{Type: EventLoadComplete, Error: res.Err()})
		out <- res
	}()
	return out, nil
}

// Load runs a load pass synchronously.
func (m *Manager) Load(ctx context.Context) (Result, error) {
	ch, err := m.Start(ctx)
	if err != nil {
		return Result{}, err
	}
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Wait blocks until a started load pass finishes.
func (m *Manager) Wait(ctx context.Context) (Result, error) {
	m.mu.RLock()
	done := m.done
	m.mu.RUnlock()
	if done == nil {
		return Result{}, nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.result, nil
}

func (m *Manager) add(lp *Loaded) {
	m.mu.Lock()
	m.plugins = append(m.plugins, lp)
	n := len(m.plugins)
	m.mu.Unlock()

	m.metrics.SetPluginsActive(n)
	m.emitEvent(ManagerEvent{Type: EventPluginLoaded, Plugin: lp.Name()})
}

// Loaded returns the loaded plugins in load order.
func (m *Manager) Loaded() []*Loaded {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Loaded, len(m.plugins))
	copy(out, m.plugins)
	return out
}

// Infos returns a snapshot of every loaded plugin.
func (m *Manager) Infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, len(m.plugins))
	for i, lp := range m.plugins {
		infos[i] = lp.Info()
	}
	return infos
}

// Get returns the first loaded plugin with name.
func (m *Manager) Get(name string) (*Loaded, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, lp := range m.plugins {
		if lp.Name() == name {
			return lp, true
		}
	}
	return nil, false
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// ShutdownAll stops an in-progress load, shuts every plugin down in load
// order and clears the list. A failing Shutdown does not stop the others.
func (m *Manager) ShutdownAll() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	m.mu.Lock()
	plugins := m.plugins
	m.plugins = nil
	m.mu.Unlock()

	var errs []error
	for _, lp := range plugins {
		if err := m.shutdown(lp); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lp.Name(), err))
		}
	}
	m.metrics.SetPluginsActive(0)
	return errors.Join(errs...)
}

func (m *Manager) shutdown(lp *Loaded) error {
	name := lp.Name()
	done := make(chan error, 1)
	go func() {
		done <- callShutdown(lp.Plugin)
	}()

	var timeout <-chan time.Time
	if m.shutdownTimeout > 0 {
		t := time.NewTimer(m.shutdownTimeout)
		defer t.Stop()
		timeout = t.C
	}

	var err error
	select {
	case err = <-done:
		lp.release()
	case <-timeout:
		err = fmt.Errorf("shutdown timed out after %s", m.shutdownTimeout)
		go func() {
			<-done
			lp.release()
		}()
	}

	lp.state = StateShutDown
	if lp.host != nil {
		lp.host.revoke()
	}
	if err != nil {
		m.logger.Warn("plugin shutdown failed", zap.String("plugin", name), zap.Error(err))
	} else {
		m.logger.Info("plugin shut down", zap.String("plugin", name))
	}
	m.emitEvent(ManagerEvent{Type: EventPluginShutdown, Plugin: name, Error: err})
	return err
}

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.mu.Lock()
	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Set to nil instead of removing to avoid index shifting issues
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

// emitEvent sends an event to all handlers.
// Handlers are called outside any locks and panics are recovered.
func (m *Manager) emitEvent(event ManagerEvent) {
	m.mu.RLock()
	handlers := make([]EventHandler, len(m.eventHandlers))
	copy(handlers, m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("plugin event handler panic", zap.Any("panic", r))
				}
			}()
			handler(event)
		}()
	}
}
