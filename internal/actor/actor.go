// Package actor models a connected caller: a stable connection identity,
// an optional authenticated account, session metadata, and named states.
package actor

import "sync"

// Actor is a connected caller. The connection id is stable for the lifetime
// of the session; the account id is empty until the connection authenticates.
type Actor struct {
	connectionID string

	mu        sync.Mutex
	accountID string
	metadata  map[string]any
	states    map[string]struct{}
}

// New creates an actor for a freshly accepted connection.
func New(connectionID string) *Actor {
	return &Actor{
		connectionID: connectionID,
		metadata:     make(map[string]any),
		states:       make(map[string]struct{}),
	}
}

// ConnectionID returns the stable connection identifier.
func (a *Actor) ConnectionID() string {
	return a.connectionID
}

// AccountID returns the authenticated account id, empty when anonymous.
func (a *Actor) AccountID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accountID
}

// Authenticated reports whether an account is attached to the connection.
func (a *Actor) Authenticated() bool {
	return a.AccountID() != ""
}

// Attach binds an authenticated account to the connection.
func (a *Actor) Attach(accountID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accountID = accountID
}

// Meta returns the metadata value stored under key.
func (a *Actor) Meta(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.metadata[key]
	return v, ok
}

// SetMeta stores a metadata value under key for the life of the session.
func (a *Actor) SetMeta(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// IncrementMeta increases an integer metadata counter and returns the new
// value. A missing or non-integer value counts as zero.
func (a *Actor) IncrementMeta(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, _ := a.metadata[key].(int)
	n++
	a.metadata[key] = n
	return n
}

// AddState marks a named state (e.g. "incapacitated") on the actor.
func (a *Actor) AddState(state string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[state] = struct{}{}
}

// RemoveState clears a named state.
func (a *Actor) RemoveState(state string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, state)
}

// HasState reports whether the named state is set.
func (a *Actor) HasState(state string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.states[state]
	return ok
}
