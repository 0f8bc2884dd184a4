// Package presence tracks currently-reachable local-account sessions so
// the coordinator can deliver best-effort confirmations. The hosting
// process registers a session when a local account becomes reachable and
// unregisters it on disconnect.
package presence

import (
	"context"
	"sync"
)

// Session is a reachable local-account endpoint.
type Session interface {
	SendText(ctx context.Context, message string) error
}

// Registry is an in-memory localID -> Session map. A registration for an
// already-present localID replaces the prior session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

func (r *Registry) Register(localID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[localID] = s
}

func (r *Registry) Unregister(localID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, localID)
}

// Resolve returns the session for a local account, if one is reachable.
func (r *Registry) Resolve(_ context.Context, localID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[localID]
	return s, ok
}
