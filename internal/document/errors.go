package document

import "errors"

// Session errors.
var (
	// ErrLoopClosed is returned when posting to a stopped loop.
	ErrLoopClosed = errors.New("document loop is closed")

	// ErrNoDocument is returned when no document scope exists yet.
	ErrNoDocument = errors.New("no document loaded")

	// ErrScriptTimeout is the interrupt value used when a script runs too long.
	ErrScriptTimeout = errors.New("script execution timeout")

	// ErrUnsupportedScheme is returned by the fetcher for unknown URL schemes.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrHistoryBoundary is returned when Back or Forward has nowhere to go.
	ErrHistoryBoundary = errors.New("no history entry in that direction")
)
