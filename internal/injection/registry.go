// Package injection keeps scripts and bridge objects alive across document
// navigations.
//
// Every transition of the session to StateSucceeded starts a fresh global
// scope. The Registry re-applies everything it holds to that scope: all
// bridges first, then all scripts, each in registration order. Registrations
// made while a document is already live are applied immediately as well.
package injection

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/linkbrowser/internal/document"
	"github.com/dshills/linkbrowser/internal/metrics"
)

// Kind identifies what failed during an injection pass.
type Kind int

const (
	// KindScript is a script execution failure.
	KindScript Kind = iota
	// KindBridge is a bridge bind failure.
	KindBridge
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindBridge:
		return "bridge"
	default:
		return "unknown"
	}
}

// Failure describes one failed bind or execution.
type Failure struct {
	Kind  Kind
	Name  string // bridge name, or "script[i]"
	Index int    // registration index
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("inject %s %s: %v", f.Kind, f.Name, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// ErrorHandler receives failures. It runs on the session loop and must not
// block.
type ErrorHandler func(Failure)

// Stats counts registry activity.
type Stats struct {
	Scripts         int
	Bridges         int
	Passes          int
	ScriptsExecuted int
	ScriptFailures  int
	BridgesBound    int
	BindFailures    int
}

// Registry holds the scripts and bridges applied to every document.
type Registry struct {
	session document.Session
	logger  *zap.Logger
	metrics *metrics.Metrics
	onError ErrorHandler

	unsubscribe func()

	// Mutated only on the session loop; the lock makes snapshots safe.
	mu          sync.RWMutex
	scripts     []string
	bridgeOrder []string
	bridges     map[string]any
	stats       Stats
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMetrics records injection counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithErrorHandler sets a callback for bind and execution failures.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(r *Registry) {
		r.onError = fn
	}
}

// New creates a registry and subscribes it to session transitions.
func New(session document.Session, opts ...Option) *Registry {
	r := &Registry{
		session: session,
		logger:  zap.NewNop(),
		bridges: make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.unsubscribe = session.Subscribe(func(_, next document.NavigationState) {
		if next == document.StateSucceeded {
			r.apply()
		}
	})
	return r
}

// AddScript registers script text. If a document is live it also runs now.
// The returned error only reports a session that no longer accepts tasks.
func (r *Registry) AddScript(script string) error {
	return r.session.Post(func() {
		r.mu.Lock()
		r.scripts = append(r.scripts, script)
		index := len(r.scripts) - 1
		r.mu.Unlock()

		if r.session.State() == document.StateSucceeded {
			r.execute(index, script)
		}
	})
}

// AddBridge registers obj under name, replacing any earlier object with the
// same name. If a document is live it is bound now.
func (r *Registry) AddBridge(name string, obj any) error {
	return r.session.Post(func() {
		r.mu.Lock()
		if _, exists := r.bridges[name]; exists {
			r.logger.Debug("bridge replaced", zap.String("name", name))
		} else {
			r.bridgeOrder = append(r.bridgeOrder, name)
		}
		r.bridges[name] = obj
		r.mu.Unlock()

		if r.session.State() == document.StateSucceeded {
			r.bind(name, obj)
		}
	})
}

// Scripts returns the registered scripts in order.
func (r *Registry) Scripts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.scripts...)
}

// Bridges returns the registered bridges by name.
func (r *Registry) Bridges() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.bridges))
	for k, v := range r.bridges {
		out[k] = v
	}
	return out
}

// BridgeNames returns bridge names in bind order.
func (r *Registry) BridgeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.bridgeOrder...)
}

// Stats returns a snapshot of registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.stats
	s.Scripts = len(r.scripts)
	s.Bridges = len(r.bridges)
	return s
}

// Close stops reacting to navigations.
func (r *Registry) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
}

// apply binds every bridge and then runs every script. Loop only.
func (r *Registry) apply() {
	r.mu.Lock()
	r.stats.Passes++
	names := append([]string(nil), r.bridgeOrder...)
	objs := make([]any, len(names))
	for i, name := range names {
		objs[i] = r.bridges[name]
	}
	scripts := append([]string(nil), r.scripts...)
	r.mu.Unlock()

	r.metrics.RecordInjectionPass()
	r.logger.Debug("injection pass",
		zap.Int("bridges", len(names)),
		zap.Int("scripts", len(scripts)))

	for i, name := range names {
		r.bind(name, objs[i])
	}
	for i, script := range scripts {
		r.execute(i, script)
	}
}

func (r *Registry) bind(name string, obj any) {
	err := r.session.BindGlobal(name, obj)
	r.metrics.RecordBridge(err)

	r.mu.Lock()
	if err != nil {
		r.stats.BindFailures++
	} else {
		r.stats.BridgesBound++
	}
	r.mu.Unlock()

	if err != nil {
		r.fail(Failure{Kind: KindBridge, Name: name, Index: r.bridgeIndex(name), Err: err})
	}
}

func (r *Registry) execute(index int, script string) {
	_, err := r.session.ExecuteScript(script)
	r.metrics.RecordScript(err)

	r.mu.Lock()
	if err != nil {
		r.stats.ScriptFailures++
	} else {
		r.stats.ScriptsExecuted++
	}
	r.mu.Unlock()

	if err != nil {
		r.fail(Failure{Kind: KindScript, Name: fmt.Sprintf("script[%d]", index), Index: index, Err: err})
	}
}

func (r *Registry) bridgeIndex(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, n := range r.bridgeOrder {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *Registry) fail(f Failure) {
	r.logger.Warn("injection failed",
		zap.Stringer("kind", f.Kind),
		zap.String("name", f.Name),
		zap.Error(f.Err))

	if r.onError == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("injection error handler panicked", zap.Any("panic", p))
		}
	}()
	r.onError(f)
}
