package plugin

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	plua "github.com/dshills/linkbrowser/internal/plugin/lua"
)

// DefaultBridgeCallTimeout bounds a document's call into a Lua bridge method.
const DefaultBridgeCallTimeout = 2 * time.Second

// pluginGlobal is read when an entry chunk returns no table.
const pluginGlobal = "plugin"

// luaShutdownTimeout bounds a Lua plugin's shutdown function.
const luaShutdownTimeout = 5 * time.Second

// archiveContext is the isolated code-loading context of one archive.
// It stays open while any plugin resolved from it is loaded.
type archiveContext struct {
	name  string
	once  sync.Once
	state *plua.State
	err   error
	opts  []plua.StateOption
	refs  atomic.Int32
}

func newArchiveContext(a *archive, logger *zap.Logger) *archiveContext {
	ac := &archiveContext{
		name: a.name,
		opts: []plua.StateOption{
			plua.WithName(a.name),
			plua.WithModules(a.modules()),
			plua.WithPrint(func(s string) {
				logger.Info(s, zap.String("source", "lua"))
			}),
		},
	}
	ac.refs.Store(1)
	return ac
}

// lua returns the archive's Lua state, creating it on first use.
func (ac *archiveContext) lua() (*plua.State, error) {
	ac.once.Do(func() {
		ac.state, ac.err = plua.NewState(ac.opts...)
	})
	return ac.state, ac.err
}

func (ac *archiveContext) acquire() {
	ac.refs.Add(1)
}

// release drops one reference and closes the state at zero.
func (ac *archiveContext) release() {
	if ac.refs.Add(-1) != 0 {
		return
	}
	if ac.state != nil {
		ac.state.Close()
	}
}

// luaPlugin adapts a Lua table returned by an entry chunk to Plugin.
//
// The chunk must return a table shaped like:
//
//	return {
//	  name = "my-plugin",
//	  version = "1.0.0",
//	  description = "...",
//	  initialize = function(host) ... end,
//	  shutdown = function() ... end,
//	}
//
// A chunk that returns nothing may assign the table to the global plugin
// instead.
type luaPlugin struct {
	ac          *archiveContext
	state       *plua.State
	name        string
	version     string
	description string
	initFn      *lua.LFunction
	shutdownFn  *lua.LFunction
	callTimeout time.Duration
}

// resolveLua runs the entry chunk and checks the returned table.
func resolveLua(ctx context.Context, a *archive, ac *archiveContext, e Entry) (*luaPlugin, Stage, error) {
	src, ok := a.sources[e.Main]
	if !ok {
		return nil, StageResolve, fmt.Errorf("%w: %s not found in archive", ErrNotInstantiable, e.Main)
	}

	state, err := ac.lua()
	if err != nil {
		return nil, StageResolve, err
	}

	// Entries share the archive state; a plugin global from an earlier
	// entry must not satisfy this one.
	state.SetGlobal(pluginGlobal, lua.LNil)
	results, err := state.DoChunk(ctx, a.name+"/"+e.Main, src)
	if err != nil {
		return nil, StageResolve, err
	}
	if len(results) == 0 || results[0] == lua.LNil {
		results = []lua.LValue{state.GetGlobal(pluginGlobal)}
	}
	if results[0] == lua.LNil {
		return nil, StageResolve, fmt.Errorf("%w: %s returned nothing", ErrNotInstantiable, e.Main)
	}
	tbl, ok := results[0].(*lua.LTable)
	if !ok {
		return nil, StageResolve, fmt.Errorf("%w: %s returned %s, want table", ErrNotInstantiable, e.Main, results[0].Type())
	}

	p := &luaPlugin{
		ac:          ac,
		state:       state,
		version:     a.manifest.Version,
		description: a.manifest.Description,
		callTimeout: DefaultBridgeCallTimeout,
	}

	var missing []string
	if p.name, ok = plua.TableString(tbl, "name"); !ok || p.name == "" {
		missing = append(missing, "name")
	}
	if p.initFn, ok = plua.TableFunc(tbl, "initialize"); !ok {
		missing = append(missing, "initialize")
	}
	if p.shutdownFn, ok = plua.TableFunc(tbl, "shutdown"); !ok {
		missing = append(missing, "shutdown")
	}
	if len(missing) > 0 {
		return nil, StageCapability, fmt.Errorf("%w: missing %v", ErrNotCapable, missing)
	}
	if v, ok := plua.TableString(tbl, "version"); ok && v != "" {
		p.version = v
	}
	if d, ok := plua.TableString(tbl, "description"); ok && d != "" {
		p.description = d
	}
	return p, "", nil
}

func (p *luaPlugin) Name() string        { return p.name }
func (p *luaPlugin) Version() string     { return p.version }
func (p *luaPlugin) Description() string { return p.description }

// Initialize calls the table's initialize function with a host table.
// A false first result fails initialization with the second result as reason.
func (p *luaPlugin) Initialize(host Host) error {
	var hostTable *lua.LTable
	err := p.state.Do(func(L *lua.LState) error {
		hostTable = p.hostTable(L, host)
		return nil
	})
	if err != nil {
		return err
	}

	results, err := p.state.CallFunction(host.Context(), p.initFn, hostTable)
	if err != nil {
		return err
	}
	if len(results) > 0 && results[0] == lua.LFalse {
		reason := "initialize returned false"
		if len(results) > 1 {
			reason = results[1].String()
		}
		return fmt.Errorf("%s: %s", p.name, reason)
	}
	return nil
}

// Shutdown calls the table's shutdown function.
func (p *luaPlugin) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), luaShutdownTimeout)
	defer cancel()
	_, err := p.state.CallFunction(ctx, p.shutdownFn)
	return err
}

// hostTable exposes Host to Lua. Called with the state lock held.
func (p *luaPlugin) hostTable(L *lua.LState, host Host) *lua.LTable {
	bridge := plua.NewBridge(L)
	t := L.NewTable()
	t.RawSetString("name", lua.LString(p.name))

	t.RawSetString("add_script", L.NewFunction(func(L *lua.LState) int {
		host.AddScript(L.CheckString(1))
		return 0
	}))

	t.RawSetString("add_bridge", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		obj := L.CheckTable(2)
		host.AddBridge(name, bridge.ExportTable(obj, p.wrap))
		return 0
	}))

	t.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		host.Logger().Info(L.CheckString(1))
		return 0
	}))

	t.RawSetString("status", L.NewFunction(func(L *lua.LState) int {
		host.Status(L.CheckString(1))
		return 0
	}))

	return t
}

// wrap turns a Lua function into a Go function a document can call. The call
// re-enters the archive state under its lock.
func (p *luaPlugin) wrap(_ string, fn *lua.LFunction) any {
	return func(args ...any) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), p.callTimeout)
		defer cancel()
		return p.state.Invoke(ctx, fn, args...)
	}
}
