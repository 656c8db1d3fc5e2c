// Package dispatch registers named commands and executes them through the
// authentication, authorization, throttling, and validation pipeline.
package dispatch

import (
	"time"

	"github.com/tessera-games/riftgate/internal/schema"
)

// Visibility controls who may invoke a command.
type Visibility string

const (
	// Public commands are callable by any connection.
	Public Visibility = "public"
	// Authenticated commands require an attached account.
	Authenticated Visibility = "authenticated"
)

// Throttle is a per-caller call-frequency policy.
type Throttle struct {
	Limit  int
	Window time.Duration
}

// Security captures the guard requirements evaluated before a command runs.
// Zero values mean the check is absent.
type Security struct {
	MinRank         int
	Permission      string
	Throttle        *Throttle
	RequiredStates  []string
	ForbiddenStates []string
}

// Descriptor declares a command at registration time. Immutable afterward.
type Descriptor struct {
	// Name is unique and case-insensitive.
	Name        string
	Description string
	// Usage is the client-facing expected-form hint for usage errors.
	Usage      string
	Visibility Visibility

	// Params is the declared parameter shape. Tag 0 must be KindActor when
	// the list is non-empty; the actor slot is bound by the dispatcher.
	Params []schema.ParamKind
	// ParamNames names the non-actor parameters, in order. Required when an
	// explicit Named schema is supplied.
	ParamNames []string

	// Named and Positional are the optional explicit schemas. At most one
	// may be set; when both are nil a Positional schema is compiled from
	// Params.
	Named      *schema.Named
	Positional *schema.Positional

	// Rest marks a handler declared with a trailing rest parameter: a final
	// array value is flattened into discrete trailing arguments.
	Rest bool

	Security Security

	// Owner is empty for local commands, or the id of the remote process
	// that owns the handler.
	Owner string
}

// Remote reports whether the command is owned by another process.
func (d Descriptor) Remote() bool {
	return d.Owner != ""
}

// declaresParams reports whether the command takes any non-actor input.
func (d Descriptor) declaresParams() bool {
	return len(d.Params) > 1 || d.Named != nil || d.Positional != nil && d.Positional.Len() > 0
}

// Info is the introspection record surfaced by help listings.
type Info struct {
	Name        string
	Description string
	Usage       string
	Visibility  Visibility
}
