package document

// NavigationState is the lifecycle state of the session's current load.
type NavigationState int

// Navigation states.
const (
	// StateIdle - nothing has been loaded yet.
	StateIdle NavigationState = iota

	// StateScheduled - a load was requested but has not started fetching.
	StateScheduled

	// StateRunning - the page is being fetched.
	StateRunning

	// StateSucceeded - the document committed and its global scope is live.
	StateSucceeded

	// StateFailed - the load failed.
	StateFailed

	// StateCancelled - the load was abandoned or superseded.
	StateCancelled
)

// String returns a string representation of the state.
func (s NavigationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// InFlight reports whether a load is pending.
func (s NavigationState) InFlight() bool {
	return s == StateScheduled || s == StateRunning
}
