// Package transport defines the contracts the dispatch core expects from
// the process's messaging layer. The core is agnostic to the concrete
// transport; the gate in transport/ws is one implementation.
package transport

import "context"

// Target addresses an outbound send: a single connection, a list of
// connections, or every connection.
type Target struct {
	All           bool
	ConnectionIDs []string
}

// ToConnection targets a single connection id.
func ToConnection(id string) Target {
	return Target{ConnectionIDs: []string{id}}
}

// ToConnections targets a list of connection ids.
func ToConnections(ids []string) Target {
	return Target{ConnectionIDs: ids}
}

// Broadcast targets every connected client.
func Broadcast() Target {
	return Target{All: true}
}

// EventHandler receives one event delivery from a connection. Arrival order
// is preserved per connection; no cross-connection ordering is guaranteed.
type EventHandler func(ctx context.Context, connectionID string, args []any)

// Transport is the client-facing messaging surface.
type Transport interface {
	// OnEvent subscribes a handler for a named client event. Subscriptions
	// are installed during bootstrap, before traffic begins.
	OnEvent(name string, handler EventHandler)
	// Send publishes an event to the targeted connections.
	Send(ctx context.Context, name string, target Target, args ...any) error
}
