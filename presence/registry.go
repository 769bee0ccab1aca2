// Package presence tracks which users hold live connections. The
// registry is plain shared state guarded by a mutex: it is created by
// the composition root and injected, so multiple relay instances or
// tests can hold independent registries.
package presence

import (
	"sync"

	"chat-relay/contract"
)

type Set map[string]struct{}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]Set // map user -> connection ids
}

var _ contract.IPresence = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Set),
	}
}

// Register adds one connection to the user's set. Registering the same
// connection id twice is a no-op, the set absorbs it.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[userID]; !ok {
		r.conns[userID] = make(Set)
	}
	r.conns[userID][connID] = struct{}{}
}

// Deregister removes one connection and reports whether the user just
// went offline. Only the removal that empties the set reports true, so
// a disconnect storm across devices yields exactly one offline
// transition. Empty sets are deleted to prevent the map growing with
// every user ever seen.
func (r *Registry) Deregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)

	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[userID]) > 0
}

// OnlineSet returns a point-in-time copy of the online user ids,
// detached from the registry's own state.
func (r *Registry) OnlineSet() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]struct{}, len(r.conns))
	for userID := range r.conns {
		snapshot[userID] = struct{}{}
	}
	return snapshot
}

func (r *Registry) Stats() (users, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, set := range r.conns {
		connections += len(set)
	}
	return len(r.conns), connections
}
