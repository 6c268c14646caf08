// Package runtime provides the arena-plus-index registry that owns
// every live HubSession and CCSession. Sessions never hold a pointer to
// each other directly — they are looked up through a Registry by key,
// the way the teacher's SessionManager looks sessions up by ID or GUID
// rather than linking Session values together by pointer. This avoids
// the cyclic back-references a direct pointer graph would create
// between a hub roster entry and the C↔C session it spawned.
package runtime

import (
	"sync"

	"github.com/google/uuid"
)

// Key identifies one entry in a Registry.
type Key = uuid.UUID

// NewKey mints a fresh registry key.
func NewKey() Key {
	return uuid.New()
}

// Registry is a concurrency-safe, UUID-keyed arena of values of type T,
// generalizing the teacher's sessions/byGUID dual-map shape to any
// session type (hub or peer) without the two packages needing to know
// about each other.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[Key]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[Key]T)}
}

// Put stores v under a freshly minted key and returns it.
func (r *Registry[T]) Put(v T) Key {
	key := NewKey()
	r.mu.Lock()
	r.entries[key] = v
	r.mu.Unlock()
	return key
}

// PutAt stores v under an explicit key, overwriting any prior entry.
func (r *Registry[T]) PutAt(key Key, v T) {
	r.mu.Lock()
	r.entries[key] = v
	r.mu.Unlock()
}

// Get returns the value stored under key, if any.
func (r *Registry[T]) Get(key Key) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Delete removes and returns the value stored under key, if any.
func (r *Registry[T]) Delete(key Key) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	return v, ok
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for every entry, in no particular order, stopping
// early if fn returns false. fn must not call back into the registry.
func (r *Registry[T]) Range(fn func(Key, T) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, v := range r.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Count re-scans every live entry and returns how many satisfy pred.
// Deliberately uncached (§4.7: "in_use() re-scans the registry on each
// query (no cached counter)") — the registry is bounded by the
// configured listen backlog plus active sessions, so the scan cost is
// acceptable.
func (r *Registry[T]) Count(pred func(T) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, v := range r.entries {
		if pred(v) {
			n++
		}
	}
	return n
}
