// Package lua provides the isolated Lua runtime that plugin archives run in.
//
// Each module archive gets exactly one State. Lua entry points from the same
// archive share it; entry points from different archives never do, so one
// archive's globals cannot leak into another's.
//
// # State
//
//	state, err := lua.NewState(
//	    lua.WithName("status-overlay.zip"),
//	    lua.WithModules(map[string]string{"util": utilSource}),
//	)
//	if err != nil {
//	    return err
//	}
//	defer state.Close()
//
//	results, err := state.DoChunk(ctx, "init.lua", src)
//
// A State serializes every call through its mutex. Calls that take a context
// abort when it is done, which is how plugin initialization deadlines are
// enforced.
//
// # Sandbox
//
// The Sandbox removes file loading functions and replaces require with a
// version that only resolves built-in libraries and modules shipped inside
// the same archive.
//
// # Bridge
//
// The Bridge converts values between Go and Lua and exports Lua tables of
// functions as Go maps that a script engine can expose to documents.
package lua
