package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// EntryKind selects how an entry point is resolved.
type EntryKind string

// Entry kinds.
const (
	// EntryLua runs a Lua file from the archive in the archive's state.
	EntryLua EntryKind = "lua"

	// EntryNative instantiates a factory registered at build time.
	EntryNative EntryKind = "native"
)

// Entry names one candidate plugin inside an archive.
type Entry struct {
	Kind EntryKind `json:"kind" yaml:"kind"`
	Main string    `json:"main,omitempty" yaml:"main,omitempty"` // Lua file inside the archive
	ID   string    `json:"id,omitempty" yaml:"id,omitempty"`     // native factory id
}

// String identifies the entry in logs and errors.
func (e Entry) String() string {
	if e.Kind == EntryNative {
		return "native:" + e.ID
	}
	return "lua:" + e.Main
}

// Manifest describes a module archive and its entry points.
type Manifest struct {
	Name        string  `json:"name" yaml:"name"`               // Unique identifier (e.g., "status-overlay")
	Version     string  `json:"version" yaml:"version"`         // Semver (e.g., "1.2.0")
	Description string  `json:"description" yaml:"description"` // Short description
	Author      string  `json:"author,omitempty" yaml:"author,omitempty"`
	Homepage    string  `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"` // default true
	Entries     []Entry `json:"entries" yaml:"entries"`
}

// Validation errors.
var (
	ErrMissingName    = errors.New("manifest: name is required")
	ErrInvalidName    = errors.New("manifest: name must be lowercase alphanumeric with hyphens")
	ErrMissingVersion = errors.New("manifest: version is required")
	ErrInvalidVersion = errors.New("manifest: version must be valid semver")
	ErrInvalidEntry   = errors.New("manifest: invalid entry")
)

// namePattern validates plugin names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// ParseManifest decodes a manifest. file selects the format by extension
// (.json, .yaml or .yml).
func ParseManifest(file string, data []byte) (*Manifest, error) {
	var m Manifest
	switch strings.ToLower(path.Ext(file)) {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", file)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewManifestMinimal creates a manifest for an archive that only ships init.lua.
func NewManifestMinimal(name string) *Manifest {
	return &Manifest{
		Name:    name,
		Version: "0.0.0",
		Entries: []Entry{{Kind: EntryLua, Main: "init.lua"}},
	}
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Version == "" {
		m.Version = "0.0.0"
	}
	if len(m.Entries) == 0 {
		m.Entries = []Entry{{Kind: EntryLua, Main: "init.lua"}}
	}
	for i := range m.Entries {
		if m.Entries[i].Kind == "" {
			if m.Entries[i].ID != "" {
				m.Entries[i].Kind = EntryNative
			} else {
				m.Entries[i].Kind = EntryLua
			}
		}
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidName, m.Name)
	}

	if m.Version == "" {
		return ErrMissingVersion
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}

	for i, e := range m.Entries {
		switch e.Kind {
		case EntryLua:
			if path.Ext(e.Main) != ".lua" {
				return fmt.Errorf("%w at index %d: main must be a .lua file, got %q", ErrInvalidEntry, i, e.Main)
			}
		case EntryNative:
			if e.ID == "" {
				return fmt.Errorf("%w at index %d: native entry needs an id", ErrInvalidEntry, i)
			}
		default:
			return fmt.Errorf("%w at index %d: unknown kind %q", ErrInvalidEntry, i, e.Kind)
		}
	}
	return nil
}

// IsEnabled reports whether the archive is enabled.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// String returns a string representation of the manifest.
func (m *Manifest) String() string {
	return fmt.Sprintf("%s v%s", m.Name, m.Version)
}
