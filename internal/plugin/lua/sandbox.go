package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// builtinModules are the libraries require may hand out.
var builtinModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// Sandbox restricts what plugin code can reach.
type Sandbox struct {
	L *lua.LState

	print   func(string)
	modules map[string]string
	loaded  map[string]lua.LValue
}

// NewSandbox creates a sandbox for the Lua state. print receives the output
// of Lua's print function.
func NewSandbox(L *lua.LState, print func(string)) *Sandbox {
	if print == nil {
		print = func(string) {}
	}
	return &Sandbox{
		L:       L,
		print:   print,
		modules: make(map[string]string),
		loaded:  make(map[string]lua.LValue),
	}
}

// AddModule makes src loadable through require(name).
func (s *Sandbox) AddModule(name, src string) {
	s.modules[name] = src
}

// Install applies the restrictions.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "module"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.installPrint()
	s.installRequire()
}

// installPrint routes print to the sandbox's print func.
func (s *Sandbox) installPrint() {
	s.L.SetGlobal("print", s.L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.ToStringMeta(L.Get(i)).String()
		}
		s.print(strings.Join(parts, "\t"))
		return 0
	}))
}

// installRequire replaces require with a resolver limited to built-in
// libraries and archive modules. Archive modules run once and are cached.
func (s *Sandbox) installRequire() {
	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		if v, ok := s.loaded[name]; ok {
			L.Push(v)
			return 1
		}

		if src, ok := s.modules[name]; ok {
			fn, err := L.Load(strings.NewReader(src), name)
			if err != nil {
				L.RaiseError("module %q: %s", name, err.Error())
				return 0
			}
			L.Push(fn)
			L.Call(0, 1)
			v := L.Get(-1)
			L.Pop(1)
			if v == lua.LNil {
				v = lua.LTrue
			}
			s.loaded[name] = v
			L.Push(v)
			return 1
		}

		if builtinModules[name] {
			L.Push(L.GetGlobal(name))
			return 1
		}

		L.RaiseError("%s: %q", ErrModuleNotFound.Error(), name)
		return 0
	}))
}
