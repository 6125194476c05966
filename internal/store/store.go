// Package store persists the per-project findings log and endpoint
// dossiers. Data lives in JSON files under a base directory, one
// subdirectory per project, with an in-memory view guarded by a mutex.
// The stores are the source of truth; the aggregation cache derives
// from them and is told, synchronously, about every successful write.
package store

import "errors"

// ErrNotFound is returned when a project or endpoint has no stored data.
var ErrNotFound = errors.New("store: not found")

// InvalidationListener is notified after every successful write so
// derived state (the vulnerability summary cache) can drop its rows.
// Notification is synchronous; the stores stay ignorant of what the
// listener actually caches.
type InvalidationListener interface {
	InvalidateProject(projectID string)
}

// notifier is the shared listener fan-out embedded by both stores.
type notifier struct {
	listeners []InvalidationListener
}

// AddListener registers a listener. Not safe to call concurrently with
// writes; wire listeners up front.
func (n *notifier) AddListener(l InvalidationListener) {
	n.listeners = append(n.listeners, l)
}

func (n *notifier) notify(projectID string) {
	for _, l := range n.listeners {
		l.InvalidateProject(projectID)
	}
}
