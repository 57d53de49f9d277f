// Package registry holds the handle tables mapping caller-facing keys
// (patch ids, receiver names) to engine-owned resources.
package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	ErrNotFound = errors.New("no entry for key")
	ErrExists   = errors.New("key already registered")
)

// A concurrency-safe table where every key is present at most once.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Add a new entry. Adding a key that is already present returns ErrExists and
// leaves the existing entry in place.
func (r *Registry[K, V]) Add(key K, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("%w: %v", ErrExists, key)
	}
	r.entries[key] = value
	return nil
}

func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[key]
	return v, ok
}

// Remove and return the entry for key, or ErrNotFound.
func (r *Registry[K, V]) Remove(key K) (V, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %v", ErrNotFound, key)
	}
	delete(r.entries, key)
	return v, nil
}

func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove every entry, returning them so the caller can release them.
func (r *Registry[K, V]) Drain() map[K]V {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := r.entries
	r.entries = make(map[K]V)
	return drained
}

// Keys in unspecified order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(maps.Keys(r.entries))
}
