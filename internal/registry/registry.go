// Package registry tracks which run IDs are currently executing. It is
// the single-executor guard: at most one active execution per run ID.
// The registry is injected into the coordinator rather than living in
// package-level state, so tests and multiple tenants get their own.
package registry

import (
	"sort"
	"sync"
)

// Registry is a concurrency-safe set of active run IDs.
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{active: make(map[string]struct{})}
}

// TryAcquire atomically registers runID as active. It returns false if
// the run is already active, in which case the caller lost the guard and
// must not execute.
func (r *Registry) TryAcquire(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[runID]; exists {
		return false
	}
	r.active[runID] = struct{}{}
	return true
}

// Release removes runID from the active set. Releasing an inactive run
// is a no-op.
func (r *Registry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, runID)
}

// Active returns the sorted list of currently active run IDs.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
