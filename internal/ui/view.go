package ui

import (
	"context"
	"errors"

	"github.com/dshills/linkbrowser/internal/bridge"
	"github.com/dshills/linkbrowser/internal/document"
)

// ErrClosed is returned by Post after the view has closed.
var ErrClosed = errors.New("ui closed")

// View is what the browser needs from a front end.
type View interface {
	bridge.Dispatcher
	bridge.Geometry
	bridge.Presenter

	// Run is the UI thread. It returns when ctx is done or the user quits.
	Run(ctx context.Context) error

	// SetStatus replaces the status line. Safe from any goroutine.
	SetStatus(msg string)

	// ShowPage replaces the viewport contents. Safe from any goroutine.
	ShowPage(title, url string, elements []document.Element)

	Close() error
}

// Controller receives user commands from the view.
type Controller interface {
	Back() error
	Forward() error
	Reload() error

	// Activate opens the element at index.
	Activate(index int) error

	// ContextMenu requests a context menu for the element at index.
	ContextMenu(index int, pageX, pageY float64) error
}
