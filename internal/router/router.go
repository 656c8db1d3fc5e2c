// Package router decides per command whether execution happens locally or
// is delegated to the remote process that owns the handler. The full local
// security pipeline runs before the routing decision, so a remote owner
// never receives a call a local execution would have rejected.
package router

import (
	"context"
	"log"

	"github.com/tessera-games/riftgate/internal/actor"
	"github.com/tessera-games/riftgate/internal/dispatch"
	apperrors "github.com/tessera-games/riftgate/internal/platform/errors"
)

// Forwarder carries an authorized call to a remote owner process. Injected
// per deployment; the router never reaches into process-global state to
// locate an owner.
type Forwarder interface {
	Forward(ctx context.Context, ownerID, connectionID, command string, args []any) error
}

// Router fronts the command dispatch service with ownership routing.
type Router struct {
	service   *dispatch.Service
	forwarder Forwarder
	logger    *log.Logger
}

// New creates a router over the local dispatch service.
func New(service *dispatch.Service, forwarder Forwarder, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{service: service, forwarder: forwarder, logger: logger}
}

// Dispatch routes one command invocation. Local commands run the full local
// pipeline. Remote commands run the identical security pipeline and are
// forwarded only when every check passes; a failed check returns the same
// error a local execution would have produced and nothing is forwarded.
func (r *Router) Dispatch(ctx context.Context, a *actor.Actor, name string, rawArgs []any) (any, error) {
	desc, err := r.service.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !desc.Remote() {
		return r.service.Execute(ctx, a, name, rawArgs)
	}

	desc, err = r.service.Authorize(ctx, a, name)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeUnauthenticated) {
			// Same silent block as local execution; the actor was already
			// notified once.
			return nil, nil
		}
		if denial := apperrors.Denial(err); denial != nil {
			return nil, denial
		}
		return nil, err
	}

	if r.forwarder == nil {
		return nil, apperrors.WithMetadata(apperrors.CodeOwnerUnreachable,
			"no forwarder configured", map[string]string{"owner": desc.Owner})
	}
	if err := r.forwarder.Forward(ctx, desc.Owner, a.ConnectionID(), desc.Name, rawArgs); err != nil {
		r.logger.Printf("ERROR forward %s to owner %s failed: %v", desc.Name, desc.Owner, err)
		return nil, apperrors.Wrap(apperrors.CodeOwnerUnreachable, "owner unreachable", err)
	}
	return nil, nil
}
