// Package telemetry records security violations and invalid-payload
// notices raised by the dispatch pipeline.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/tessera-games/riftgate/internal/actor"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event kinds recorded by the dispatch pipeline.
const (
	KindSecurityViolation = "security_violation"
	KindInvalidPayload    = "invalid_payload"
)

// Event is one recorded telemetry event.
type Event struct {
	Timestamp    time.Time
	Severity     Severity
	Kind         string
	ConnectionID string
	AccountID    string
	// Name is the command or event the caller invoked.
	Name   string
	Reason string
	Count  int
	Issues []string
}

// Store persists telemetry events.
type Store interface {
	AppendEvent(ctx context.Context, evt Event) error
}

// Emitter records operational telemetry events. It implements the violation
// sink and invalid-payload observer contracts of the dispatch pipeline;
// store failures are logged and never propagate into dispatch.
type Emitter struct {
	store Store
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if e == nil || e.store == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	if err := e.store.AppendEvent(ctx, evt); err != nil {
		log.Printf("telemetry append failed: %v", err)
	}
}

// SecurityViolation implements the dispatch violation sink.
func (e *Emitter) SecurityViolation(ctx context.Context, a *actor.Actor, name string, cause error) {
	evt := Event{
		Severity: SeverityWarn,
		Kind:     KindSecurityViolation,
		Name:     name,
	}
	if a != nil {
		evt.ConnectionID = a.ConnectionID()
		evt.AccountID = a.AccountID()
	}
	if cause != nil {
		evt.Reason = cause.Error()
	}
	e.Emit(ctx, evt)
}

// InvalidPayload implements the net-event invalid-payload observer.
func (e *Emitter) InvalidPayload(ctx context.Context, a *actor.Actor, event, reason string, count int, issues []string) {
	evt := Event{
		Severity: SeverityWarn,
		Kind:     KindInvalidPayload,
		Name:     event,
		Reason:   reason,
		Count:    count,
		Issues:   issues,
	}
	if a != nil {
		evt.ConnectionID = a.ConnectionID()
		evt.AccountID = a.AccountID()
	}
	e.Emit(ctx, evt)
}

// LogStore writes telemetry events to the process log.
type LogStore struct{}

// AppendEvent implements Store.
func (LogStore) AppendEvent(_ context.Context, evt Event) error {
	log.Printf("telemetry %s kind=%s name=%s conn=%s account=%s reason=%q count=%d",
		evt.Severity, evt.Kind, evt.Name, evt.ConnectionID, evt.AccountID, evt.Reason, evt.Count)
	return nil
}
