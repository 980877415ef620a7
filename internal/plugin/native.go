package plugin

import (
	"sort"
	"sync"
)

// Factory creates a native plugin instance. Returning nil marks the entry
// as not instantiable; returning a value that is not a Plugin marks it as
// not capable.
type Factory func() any

// Factories is a registry of native entry points by id.
type Factories struct {
	mu sync.RWMutex
	m  map[string]Factory
}

// NewFactories creates an empty factory registry.
func NewFactories() *Factories {
	return &Factories{m: make(map[string]Factory)}
}

// Register adds or replaces the factory for id.
func (f *Factories) Register(id string, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[id] = factory
}

// Lookup returns the factory for id.
func (f *Factories) Lookup(id string) (Factory, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	factory, ok := f.m[id]
	return factory, ok
}

// IDs returns the registered ids in sorted order.
func (f *Factories) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.m))
	for id := range f.m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultFactories holds factories registered from init functions.
var DefaultFactories = NewFactories()

// Register adds a factory to DefaultFactories.
func Register(id string, factory Factory) {
	DefaultFactories.Register(id, factory)
}
