package document

// Listener observes navigation transitions. Listeners run on the session's
// loop, in subscription order, before the transition call returns.
type Listener func(old, new NavigationState)

// Session is the document session consumed by the injection runtime.
//
// ExecuteScript and BindGlobal touch the live global scope and must only be
// called from a task running on the session loop (see Post).
type Session interface {
	// State returns the current navigation state.
	State() NavigationState

	// Subscribe registers a transition listener and returns its cancel func.
	Subscribe(fn Listener) (cancel func())

	// ExecuteScript evaluates source text in the current global scope.
	ExecuteScript(src string) (any, error)

	// BindGlobal installs obj under name in the current global scope.
	BindGlobal(name string, obj any) error

	// Post queues a task onto the session loop.
	Post(task func()) error
}

// Ensure Engine implements Session.
var _ Session = (*Engine)(nil)
