package plugin

import "fmt"

// State represents the lifecycle state of a plugin.
type State int

// Plugin states.
const (
	// StateUnloaded - Plugin was resolved but not initialized.
	StateUnloaded State = iota

	// StateInitialized - Initialize returned successfully; the plugin is listed.
	StateInitialized

	// StateShutDown - Shutdown has been called.
	StateShutDown
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateInitialized:
		return "initialized"
	case StateShutDown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unloaded":
		*s = StateUnloaded
	case "initialized":
		*s = StateInitialized
	case "shutdown":
		*s = StateShutDown
	default:
		return fmt.Errorf("unknown plugin state %q", text)
	}
	return nil
}
