package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tessera-games/riftgate/internal/actor"
)

type recordingStore struct {
	events []Event
	err    error
}

func (s *recordingStore) AppendEvent(_ context.Context, evt Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func TestEmitStampsTimestamp(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	e := NewEmitter(store)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.clock = func() time.Time { return fixed }

	e.Emit(context.Background(), Event{Kind: KindSecurityViolation})
	if len(store.events) != 1 {
		t.Fatalf("events = %d, want 1", len(store.events))
	}
	if !store.events[0].Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v, want %v", store.events[0].Timestamp, fixed)
	}
}

func TestEmitNilSafe(t *testing.T) {
	t.Parallel()

	var e *Emitter
	e.Emit(context.Background(), Event{})

	NewEmitter(nil).Emit(context.Background(), Event{})
}

func TestEmitSwallowsStoreErrors(t *testing.T) {
	t.Parallel()

	e := NewEmitter(&recordingStore{err: errors.New("sink down")})
	// Must not panic or propagate.
	e.Emit(context.Background(), Event{Kind: KindInvalidPayload})
}

func TestSecurityViolationCapturesActor(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	e := NewEmitter(store)
	a := actor.New("conn-7")
	a.Attach("acct-7")

	e.SecurityViolation(context.Background(), a, "ban", errors.New("rank below minimum"))
	evt := store.events[0]
	if evt.Kind != KindSecurityViolation || evt.Name != "ban" {
		t.Fatalf("event = %+v", evt)
	}
	if evt.ConnectionID != "conn-7" || evt.AccountID != "acct-7" {
		t.Fatalf("identity = %s/%s", evt.ConnectionID, evt.AccountID)
	}
	if evt.Reason != "rank below minimum" {
		t.Fatalf("reason = %q", evt.Reason)
	}
}

func TestInvalidPayloadCapturesCounter(t *testing.T) {
	t.Parallel()

	store := &recordingStore{}
	e := NewEmitter(store)

	e.InvalidPayload(context.Background(), actor.New("conn-1"), "trade", "argument-count", 4, nil)
	evt := store.events[0]
	if evt.Kind != KindInvalidPayload || evt.Reason != "argument-count" || evt.Count != 4 {
		t.Fatalf("event = %+v", evt)
	}
}
