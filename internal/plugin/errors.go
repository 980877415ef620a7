package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin cannot be located.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoManifest is returned when an archive has neither a manifest nor init.lua.
	ErrNoManifest = errors.New("archive has no plugin.json, plugin.yaml or init.lua")

	// ErrNilManifest is returned when a nil manifest is provided.
	ErrNilManifest = errors.New("manifest is nil")

	// ErrPluginDisabled is returned when a plugin is disabled by manifest or config.
	ErrPluginDisabled = errors.New("plugin is disabled")

	// ErrNotInstantiable is returned when an entry point yields no instance.
	ErrNotInstantiable = errors.New("entry point could not be instantiated")

	// ErrNotCapable is returned when an instance does not satisfy the plugin contract.
	ErrNotCapable = errors.New("entry point does not implement the plugin contract")

	// ErrUnknownFactory is returned when a native entry names an unregistered factory.
	ErrUnknownFactory = errors.New("unknown native plugin factory")

	// ErrInitTimeout is returned when Initialize does not finish before its deadline.
	ErrInitTimeout = errors.New("plugin initialize timed out")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("plugin manager already started")
)

// Stage names the loader step at which an entry failed.
type Stage string

// Load stages.
const (
	StageDiscover   Stage = "discover"
	StageOpen       Stage = "open"
	StageManifest   Stage = "manifest"
	StageResolve    Stage = "resolve"
	StageCapability Stage = "capability"
	StageInitialize Stage = "initialize"
	StageShutdown   Stage = "shutdown"
)

// LoadError records a failure for one archive or entry point.
type LoadError struct {
	Archive string
	Entry   string
	Stage   Stage
	Err     error
}

func (e *LoadError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("%s: %s: %v", e.Archive, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s: %v", e.Archive, e.Entry, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
