package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for registry operations.
var (
	// ErrUnknown indicates a lookup for a name never registered.
	ErrUnknown = errors.New("name not registered")

	// ErrDuplicate indicates a registration under an already-taken name.
	ErrDuplicate = errors.New("name already registered")
)

// Registry is a thread-safe mapping from names to implementations.
// It uses sync.RWMutex for read-heavy workloads: registration happens at
// startup, lookups on every graph load.
type Registry[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// New creates an empty registry.
func New[V any]() *Registry[V] {
	return &Registry[V]{
		entries: make(map[string]V),
	}
}

// Register publishes an implementation under a name.
// Returns ErrDuplicate if the name is taken; use Replace to overwrite.
func (r *Registry[V]) Register(name string, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.entries[name] = value
	return nil
}

// MustRegister publishes an implementation and panics on a duplicate name.
// Intended for startup-time registration where a clash is a program bug.
func (r *Registry[V]) MustRegister(name string, value V) {
	if err := r.Register(name, value); err != nil {
		panic("registry: " + err.Error())
	}
}

// Replace publishes an implementation, overwriting any existing entry.
func (r *Registry[V]) Replace(name string, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = value
}

// Lookup returns the implementation registered under a name.
// Returns ErrUnknown (wrapped with the name) when absent.
func (r *Registry[V]) Lookup(name string) (V, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[name]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	return v, nil
}

// Has reports whether a name is registered.
func (r *Registry[V]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Deregister removes a name. Reports whether it was present.
func (r *Registry[V]) Deregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	delete(r.entries, name)
	return ok
}

// Names returns all registered names in sorted order.
func (r *Registry[V]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry in sorted name order, stopping early if fn
// returns false. Iteration runs over a snapshot; registering or removing
// entries from fn is safe.
func (r *Registry[V]) Range(fn func(name string, value V) bool) {
	r.mu.RLock()
	snapshot := make(map[string]V, len(r.entries))
	for name, v := range r.entries {
		snapshot[name] = v
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !fn(name, snapshot[name]) {
			return
		}
	}
}
