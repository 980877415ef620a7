package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// DefaultScriptTimeout bounds a single script evaluation.
const DefaultScriptTimeout = 5 * time.Second

// Event is a synthetic user gesture delivered to document listeners.
type Event struct {
	Type   string
	Target Element
	PageX  float64
	PageY  float64
}

type navMode int

const (
	navPush navMode = iota
	navReload
	navHistory
)

type subscription struct {
	id int
	fn Listener
}

// Engine is a goja-backed document session.
type Engine struct {
	loop          *Loop
	logger        *zap.Logger
	fetcher       Fetcher
	scriptTimeout time.Duration

	ctx  context.Context
	stop context.CancelFunc

	state atomic.Int32

	mu        sync.RWMutex
	subs      []subscription
	nextSubID int
	page      *Page
	history   []string
	index     int

	// Owned by the loop.
	vm       *goja.Runtime
	handlers map[string][]goja.Callable
	gen      uint64
	cancel   context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFetcher sets the page fetcher.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithScriptTimeout bounds each script evaluation. Zero disables the bound.
func WithScriptTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.scriptTimeout = d
	}
}

// NewEngine creates an engine and starts its loop.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:        zap.NewNop(),
		fetcher:       &HTTPFetcher{},
		scriptTimeout: DefaultScriptTimeout,
		index:         -1,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.ctx, e.stop = context.WithCancel(context.Background())
	e.loop = NewLoop(e.logger.Named("loop"))
	go e.loop.Run(e.ctx)
	return e
}

// State returns the current navigation state. Safe from any goroutine.
func (e *Engine) State() NavigationState {
	return NavigationState(e.state.Load())
}

// Subscribe registers a transition listener.
func (e *Engine) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Post queues a task onto the engine loop.
func (e *Engine) Post(task func()) error {
	return e.loop.Post(task)
}

// Do runs fn on the loop and waits for it. Not for use from the loop.
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	return e.loop.Do(ctx, fn)
}

// Navigate starts loading rawURL, superseding any load in flight.
func (e *Engine) Navigate(rawURL string) error {
	return e.loop.Post(func() { e.begin(rawURL, navPush) })
}

// Reload loads the current URL again.
func (e *Engine) Reload() error {
	return e.loop.Post(func() {
		if url := e.URL(); url != "" {
			e.begin(url, navReload)
		}
	})
}

// Back moves one entry back in history.
func (e *Engine) Back() error {
	if !e.CanGoBack() {
		return ErrHistoryBoundary
	}
	return e.loop.Post(func() { e.move(-1) })
}

// Forward moves one entry forward in history.
func (e *Engine) Forward() error {
	if !e.CanGoForward() {
		return ErrHistoryBoundary
	}
	return e.loop.Post(func() { e.move(1) })
}

// Cancel abandons the load in flight, if any.
func (e *Engine) Cancel() error {
	return e.loop.Post(e.abort)
}

// CanGoBack reports whether a previous history entry exists.
func (e *Engine) CanGoBack() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index > 0
}

// CanGoForward reports whether a next history entry exists.
func (e *Engine) CanGoForward() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index >= 0 && e.index < len(e.history)-1
}

// URL returns the current history entry.
func (e *Engine) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.index < 0 || e.index >= len(e.history) {
		return ""
	}
	return e.history[e.index]
}

// Page returns the last committed page, or nil.
func (e *Engine) Page() *Page {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.page
}

// DispatchEvent delivers ev to the listeners registered by the current
// document.
func (e *Engine) DispatchEvent(ev Event) error {
	return e.loop.Post(func() { e.dispatch(ev) })
}

// ExecuteScript evaluates src in the current global scope. Loop only.
func (e *Engine) ExecuteScript(src string) (any, error) {
	if e.vm == nil {
		return nil, ErrNoDocument
	}
	v, err := e.guard(func(vm *goja.Runtime) (goja.Value, error) {
		return vm.RunString(src)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.Export(), nil
}

// BindGlobal installs obj under name in the current global scope. Loop only.
func (e *Engine) BindGlobal(name string, obj any) error {
	if e.vm == nil {
		return ErrNoDocument
	}
	if name == "" {
		return errors.New("bind global: empty name")
	}
	return e.vm.Set(name, obj)
}

// Close cancels any load in flight and stops the loop.
func (e *Engine) Close() error {
	e.stop()
	e.loop.Close()
	return nil
}

// begin starts a navigation. Loop only.
func (e *Engine) begin(rawURL string, mode navMode) {
	e.abort()

	if mode == navPush {
		e.mu.Lock()
		e.history = append(e.history[:e.index+1], rawURL)
		e.index = len(e.history) - 1
		e.mu.Unlock()
	}

	e.gen++
	gen := e.gen
	ctx, cancel := context.WithCancel(e.ctx)
	e.cancel = cancel

	e.logger.Debug("navigation scheduled", zap.String("url", rawURL))
	e.transition(StateScheduled)
	go e.fetch(ctx, gen, rawURL)
}

// move shifts the history index and loads that entry. Loop only.
func (e *Engine) move(delta int) {
	e.mu.Lock()
	next := e.index + delta
	if next < 0 || next >= len(e.history) {
		e.mu.Unlock()
		e.logger.Debug("history move out of range", zap.Int("delta", delta))
		return
	}
	e.index = next
	url := e.history[next]
	e.mu.Unlock()

	e.begin(url, navHistory)
}

// abort cancels the load in flight. Loop only.
func (e *Engine) abort() {
	if !e.State().InFlight() {
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.gen++
	e.transition(StateCancelled)
}

// fetch runs off the loop and posts its outcome back.
func (e *Engine) fetch(ctx context.Context, gen uint64, rawURL string) {
	_ = e.loop.Post(func() {
		if gen == e.gen && e.State() == StateScheduled {
			e.transition(StateRunning)
		}
	})

	var page *Page
	body, err := e.fetcher.Fetch(ctx, rawURL)
	if err == nil {
		page, err = ParsePage(rawURL, body)
		body.Close()
	}

	_ = e.loop.Post(func() { e.complete(gen, page, err) })
}

// complete commits or fails a load. Stale generations are dropped. Loop only.
func (e *Engine) complete(gen uint64, page *Page, err error) {
	if gen != e.gen {
		return
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}

	if err != nil {
		e.logger.Warn("navigation failed", zap.Error(err))
		e.transition(StateFailed)
		return
	}

	e.commit(page)
	e.transition(StateSucceeded)
}

// commit replaces the global scope with a fresh one for page. Loop only.
func (e *Engine) commit(page *Page) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())

	e.vm = vm
	e.handlers = make(map[string][]goja.Callable)
	e.installHost(vm, page)

	e.mu.Lock()
	e.page = page
	e.mu.Unlock()

	for i, src := range page.Scripts {
		if _, err := e.guard(func(vm *goja.Runtime) (goja.Value, error) {
			return vm.RunString(src)
		}); err != nil {
			e.logger.Warn("page script failed", zap.Int("index", i), zap.String("url", page.URL), zap.Error(err))
		}
	}
}

// transition records the new state and notifies listeners. Loop only.
func (e *Engine) transition(next NavigationState) {
	old := NavigationState(e.state.Swap(int32(next)))

	e.mu.RLock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()

	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("navigation listener panicked", zap.Any("panic", r))
				}
			}()
			s.fn(old, next)
		}()
	}
}

// guard runs fn against the current runtime with the script timeout and
// panic recovery applied.
func (e *Engine) guard(fn func(vm *goja.Runtime) (goja.Value, error)) (v goja.Value, err error) {
	vm := e.vm
	if e.scriptTimeout > 0 {
		timer := time.AfterFunc(e.scriptTimeout, func() {
			vm.Interrupt(ErrScriptTimeout)
		})
		defer func() {
			timer.Stop()
			vm.ClearInterrupt()
		}()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()

	v, err = fn(vm)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, ErrScriptTimeout
	}
	return v, err
}
