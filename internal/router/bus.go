package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/tessera-games/riftgate/internal/actor"
	"github.com/tessera-games/riftgate/internal/dispatch"
	"github.com/tessera-games/riftgate/internal/transport"
)

// ChannelFor names the dedicated delegation channel for an owner process.
func ChannelFor(ownerID string) string {
	return "riftgate.commands." + ownerID
}

// envelope is the wire form of a delegated call.
type envelope struct {
	ConnectionID string `json:"connection_id"`
	Command      string `json:"command"`
	Args         []any  `json:"args"`
}

// BusForwarder forwards authorized calls over a publish/subscribe bus, one
// channel per owner.
type BusForwarder struct {
	bus transport.Bus
}

// NewBusForwarder creates a bus-backed forwarder.
func NewBusForwarder(bus transport.Bus) *BusForwarder {
	return &BusForwarder{bus: bus}
}

// Forward implements Forwarder.
func (f *BusForwarder) Forward(ctx context.Context, ownerID, connectionID, command string, args []any) error {
	payload, err := json.Marshal(envelope{
		ConnectionID: connectionID,
		Command:      command,
		Args:         args,
	})
	if err != nil {
		return fmt.Errorf("encode delegated call: %w", err)
	}
	return f.bus.Publish(ctx, ChannelFor(ownerID), payload)
}

// Receiver is the owner-process side of delegation: it subscribes to its
// own channel and executes delegated calls through the local dispatch
// service. The sender already ran the security pipeline, so the guard is
// not re-run here: the throttle is stateful, and re-charging it would deny
// calls a local execution would have allowed. Validation still runs against
// the forwarded raw arguments.
type Receiver struct {
	ownerID   string
	service   *dispatch.Service
	directory actor.Directory
	logger    *log.Logger
}

// NewReceiver creates a delegation receiver for this process's owner id.
func NewReceiver(ownerID string, service *dispatch.Service, directory actor.Directory, logger *log.Logger) *Receiver {
	if logger == nil {
		logger = log.Default()
	}
	return &Receiver{ownerID: ownerID, service: service, directory: directory, logger: logger}
}

// Listen subscribes the receiver on the bus. Call once during bootstrap.
func (r *Receiver) Listen(bus transport.Bus) {
	bus.Subscribe(ChannelFor(r.ownerID), r.handle)
}

func (r *Receiver) handle(ctx context.Context, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Printf("WARN delegated call with malformed payload dropped: %v", err)
		return
	}
	a, ok := r.directory.GetByConnection(env.ConnectionID)
	if !ok {
		r.logger.Printf("WARN delegated %s for unknown connection %s dropped", env.Command, env.ConnectionID)
		return
	}
	if _, err := r.service.ExecuteDelegated(ctx, a, env.Command, env.Args); err != nil {
		r.logger.Printf("ERROR delegated %s failed for %s: %v", env.Command, env.ConnectionID, err)
	}
}
