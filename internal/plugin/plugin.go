package plugin

import (
	"context"

	"go.uber.org/zap"
)

// Plugin is the contract every loadable entry point satisfies.
type Plugin interface {
	Name() string
	Version() string
	Description() string

	// Initialize registers the plugin's scripts and bridges through host.
	// It must return before host.Context() is done.
	Initialize(host Host) error

	// Shutdown releases the plugin's resources.
	Shutdown() error
}

// Host is the capability surface handed to a plugin during Initialize.
type Host interface {
	// Context is done when Initialize returns or its deadline passes.
	Context() context.Context

	// AddScript registers a script to run in every loaded document.
	AddScript(script string)

	// AddBridge exposes obj to every loaded document under name.
	AddBridge(name string, obj any)

	// Logger returns a logger scoped to the plugin.
	Logger() *zap.Logger

	// Status posts a user-visible status message.
	Status(msg string)
}
