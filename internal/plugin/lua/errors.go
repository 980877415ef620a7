package lua

import "errors"

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrModuleNotFound is returned by require for unknown modules.
	ErrModuleNotFound = errors.New("lua module not available")
)
