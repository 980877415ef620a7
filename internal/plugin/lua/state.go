package lua

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State wraps gopher-lua for one plugin archive.
//
// gopher-lua's LState is not goroutine-safe. Every method takes the state
// mutex, so callers on different goroutines (the plugin loader, the document
// loop invoking a bridge) are serialized.
type State struct {
	L *lua.LState

	mu sync.Mutex

	name    string
	print   func(string)
	modules map[string]string

	closed bool
}

// StateOption configures a State.
type StateOption func(*State)

// WithName sets the chunk name prefix used in error messages.
func WithName(name string) StateOption {
	return func(s *State) {
		s.name = name
	}
}

// WithPrint redirects Lua's print.
func WithPrint(fn func(string)) StateOption {
	return func(s *State) {
		s.print = fn
	}
}

// WithModules makes sources available to require by module name.
func WithModules(modules map[string]string) StateOption {
	return func(s *State) {
		s.modules = modules
	}
}

// NewState creates a new sandboxed Lua state.
func NewState(opts ...StateOption) (*State, error) {
	state := &State{
		name:  "lua",
		print: func(string) {},
	}
	for _, opt := range opts {
		opt(state)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	state.L = L

	openSafeLibraries(L)

	sandbox := NewSandbox(L, state.print)
	for name, src := range state.modules {
		sandbox.AddModule(name, src)
	}
	sandbox.Install()

	return state, nil
}

// openSafeLibraries opens only the libraries plugins need.
// io, os, debug and package are intentionally left closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// Name returns the state's name.
func (s *State) Name() string {
	return s.name
}

// DoChunk compiles and runs src, returning every value the chunk returns.
// Execution aborts when ctx is done.
func (s *State) DoChunk(ctx context.Context, chunk, src string) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	fn, err := s.L.Load(strings.NewReader(src), chunk)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", chunk, err)
	}
	return s.pcall(ctx, fn)
}

// CallFunction calls fn with args. Execution aborts when ctx is done.
func (s *State) CallFunction(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	return s.pcall(ctx, fn, args...)
}

// Invoke calls fn with Go arguments and returns its first result as a Go
// value. Conversion happens under the state lock.
func (s *State) Invoke(ctx context.Context, fn *lua.LFunction, args ...any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}
	b := NewBridge(s.L)
	results, err := s.pcall(ctx, fn, b.Values(args)...)
	if err != nil {
		return nil, err
	}
	return b.First(results), nil
}

// Do gives fn exclusive access to the underlying LState.
func (s *State) Do(fn func(L *lua.LState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn(s.L)
}

// pcall runs fn under protection. Must be called with mu held.
func (s *State) pcall(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) (results []lua.LValue, err error) {
	if ctx != nil && ctx.Done() != nil {
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}

	// Record stack top before pushing anything
	stackTop := s.L.GetTop()

	defer func() {
		if r := recover(); r != nil {
			s.L.SetTop(stackTop)
			results, err = nil, fmt.Errorf("lua panic: %v", r)
		}
	}()

	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}
	if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
		s.L.SetTop(stackTop)
		if ctx != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, err
	}

	// Collect only the values added by the call
	nRet := s.L.GetTop() - stackTop
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results = make([]lua.LValue, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = s.L.Get(stackTop + i + 1)
	}
	s.L.Pop(nRet)
	return results, nil
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.SetGlobal(name, value)
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
