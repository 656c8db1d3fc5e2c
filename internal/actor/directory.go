package actor

import "sync"

// Directory resolves a connection identifier to an actor.
type Directory interface {
	GetByConnection(connectionID string) (*Actor, bool)
}

// Registry is the in-memory directory used by the gate. Connections are
// added on accept and removed on disconnect.
type Registry struct {
	mu     sync.Mutex
	actors map[string]*Actor
}

// NewRegistry creates an empty actor registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[string]*Actor)}
}

// Add registers an actor under its connection id.
func (r *Registry) Add(a *Actor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actors[a.ConnectionID()] = a
}

// Remove drops the actor for a departed connection.
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, connectionID)
}

// GetByConnection implements Directory.
func (r *Registry) GetByConnection(connectionID string) (*Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[connectionID]
	return a, ok
}

// Len returns the number of connected actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}
