package bridge

import "errors"

var (
	// ErrMenuClosed is returned by Select and Dismiss once a menu has closed.
	ErrMenuClosed = errors.New("menu already closed")

	// ErrNoSuchItem is returned when Select gets an out-of-range index.
	ErrNoSuchItem = errors.New("no such menu item")
)
