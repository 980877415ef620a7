package lua

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// Bridge converts values between Go and Lua.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value to a Go value. Tables become []any when they
// are contiguous arrays and map[string]any otherwise. Functions become nil.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil, *lua.LNilType, *lua.LFunction:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LUserData:
		return v.Value
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return b.tableToGo(v, visited)
	default:
		return nil
	}
}

func (b *Bridge) tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[keyString(k)] = b.toGo(v, visited)
	})
	return m
}

func keyString(k lua.LValue) string {
	if n, ok := k.(lua.LNumber); ok {
		return fmt.Sprintf("%v", float64(n))
	}
	return k.String()
}

// ToLuaValue converts a Go value to a Lua value.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		t := b.L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, b.ToLuaValue(item))
		}
		return t
	case map[string]any:
		t := b.L.NewTable()
		for k, item := range val {
			t.RawSetString(k, b.ToLuaValue(item))
		}
		return t
	default:
		return b.reflectToLua(reflect.ValueOf(v))
	}
}

// reflectToLua covers the remaining numeric kinds and containers.
func (b *Bridge) reflectToLua(rv reflect.Value) lua.LValue {
	switch rv.Kind() {
	case reflect.Invalid:
		return lua.LNil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
		return b.reflectToLua(rv.Elem())
	case reflect.Slice, reflect.Array:
		t := b.L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, b.ToLuaValue(rv.Index(i).Interface()))
		}
		return t
	case reflect.Map:
		t := b.L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(b.ToLuaValue(iter.Key().Interface()), b.ToLuaValue(iter.Value().Interface()))
		}
		return t
	default:
		ud := b.L.NewUserData()
		ud.Value = rv.Interface()
		return ud
	}
}

// Values converts Go arguments for a Lua call.
func (b *Bridge) Values(args []any) []lua.LValue {
	out := make([]lua.LValue, len(args))
	for i, arg := range args {
		out[i] = b.ToLuaValue(arg)
	}
	return out
}

// First returns the first result as a Go value, or nil.
func (b *Bridge) First(results []lua.LValue) any {
	if len(results) == 0 {
		return nil
	}
	return b.ToGoValue(results[0])
}

// ExportTable converts t into a Go map whose function fields are replaced by
// whatever wrap returns for them. Sub-tables holding functions are exported
// the same way, with wrap receiving the dotted path. Other fields are
// converted with ToGoValue.
func (b *Bridge) ExportTable(t *lua.LTable, wrap func(name string, fn *lua.LFunction) any) map[string]any {
	return b.exportTable(t, "", wrap, map[*lua.LTable]bool{t: true})
}

func (b *Bridge) exportTable(t *lua.LTable, prefix string, wrap func(string, *lua.LFunction) any, visited map[*lua.LTable]bool) map[string]any {
	out := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		name := prefix + string(key)
		switch v := v.(type) {
		case *lua.LFunction:
			out[string(key)] = wrap(name, v)
		case *lua.LTable:
			if !visited[v] && hasFunction(v, make(map[*lua.LTable]bool)) {
				visited[v] = true
				out[string(key)] = b.exportTable(v, name+".", wrap, visited)
				return
			}
			out[string(key)] = b.ToGoValue(v)
		default:
			out[string(key)] = b.ToGoValue(v)
		}
	})
	return out
}

// hasFunction reports whether t or any table below it holds a function.
func hasFunction(t *lua.LTable, seen map[*lua.LTable]bool) bool {
	if seen[t] {
		return false
	}
	seen[t] = true
	found := false
	t.ForEach(func(_, v lua.LValue) {
		if found {
			return
		}
		switch v := v.(type) {
		case *lua.LFunction:
			found = true
		case *lua.LTable:
			found = hasFunction(v, seen)
		}
	})
	return found
}

// TableString gets a string field from a Lua table.
func TableString(t *lua.LTable, key string) (string, bool) {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s), true
	}
	return "", false
}

// TableFunc gets a function field from a Lua table.
func TableFunc(t *lua.LTable, key string) (*lua.LFunction, bool) {
	if f, ok := t.RawGetString(key).(*lua.LFunction); ok {
		return f, true
	}
	return nil, false
}
