package netevent

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/tessera-games/riftgate/internal/actor"
	apperrors "github.com/tessera-games/riftgate/internal/platform/errors"
	"github.com/tessera-games/riftgate/internal/schema"
	"github.com/tessera-games/riftgate/internal/transport"
)

type fakeObserver struct {
	notices []notice
	panics  bool
}

type notice struct {
	event  string
	reason string
	count  int
	issues []string
}

func (o *fakeObserver) InvalidPayload(_ context.Context, _ *actor.Actor, event, reason string, count int, issues []string) {
	if o.panics {
		panic("observer failure")
	}
	o.notices = append(o.notices, notice{event: event, reason: reason, count: count, issues: issues})
}

type fakeNotifier struct {
	notices []string
}

func (n *fakeNotifier) Notify(_ context.Context, connectionID, message string) error {
	n.notices = append(n.notices, connectionID+": "+message)
	return nil
}

type fixture struct {
	processor *Processor
	registry  *actor.Registry
	observer  *fakeObserver
	notifier  *fakeNotifier
}

func newFixture() *fixture {
	registry := actor.NewRegistry()
	observer := &fakeObserver{}
	notifier := &fakeNotifier{}
	processor := NewProcessor(Deps{
		Directory: registry,
		Notifier:  notifier,
		Observer:  observer,
		Logger:    log.New(io.Discard, "", 0),
	})
	return &fixture{processor: processor, registry: registry, observer: observer, notifier: notifier}
}

func (f *fixture) connect(connectionID string) *actor.Actor {
	a := actor.New(connectionID)
	f.registry.Add(a)
	return a
}

func tradeDescriptor() Descriptor {
	return Descriptor{
		Name: "trade",
		Named: &schema.Named{Fields: []schema.Field{
			{Name: "action", Validator: schema.Validator{Kind: schema.KindString}},
			{Name: "amount", Validator: schema.Validator{Kind: schema.KindNumber}},
			{Name: "targetId", Validator: schema.Validator{Kind: schema.KindString}},
		}},
	}
}

func TestHandleObjectPayload(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	var got []any
	_ = f.processor.Register(tradeDescriptor(), func(_ context.Context, _ *actor.Actor, args []any) error {
		got = args
		return nil
	})

	f.processor.Handle(context.Background(), "conn-1", "trade", []any{map[string]any{
		"action":   "buy",
		"amount":   float64(10),
		"targetId": "npc-1",
	}})
	if len(got) != 3 || got[0] != "buy" || got[1] != float64(10) {
		t.Fatalf("handler args = %v", got)
	}
	if len(f.observer.notices) != 0 {
		t.Fatalf("observer notices = %v, want none", f.observer.notices)
	}
}

func TestHandlePositionalScalars(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	var got []any
	_ = f.processor.Register(Descriptor{
		Name:   "move",
		Params: []schema.ParamKind{schema.KindActor, schema.KindNumber, schema.KindNumber},
	}, func(_ context.Context, _ *actor.Actor, args []any) error {
		got = args
		return nil
	})

	f.processor.Handle(context.Background(), "conn-1", "move", []any{float64(3), float64(4)})
	if len(got) != 2 || got[0] != float64(3) || got[1] != float64(4) {
		t.Fatalf("handler args = %v", got)
	}
}

func TestHandleArgumentCountMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a := f.connect("conn-1")
	invoked := false
	_ = f.processor.Register(tradeDescriptor(), func(context.Context, *actor.Actor, []any) error {
		invoked = true
		return nil
	})

	// Two positional values instead of one object.
	f.processor.Handle(context.Background(), "conn-1", "trade", []any{"buy", float64(10)})
	if invoked {
		t.Fatal("handler invoked for malformed payload")
	}
	if len(f.observer.notices) != 1 {
		t.Fatalf("notices = %v, want one", f.observer.notices)
	}
	n := f.observer.notices[0]
	if n.reason != ReasonArgumentCount || n.count != 1 {
		t.Fatalf("notice = %+v, want argument-count count=1", n)
	}
	if v, _ := a.Meta("riftgate.invalid.trade"); v.(int) != 1 {
		t.Fatalf("session counter = %v, want 1", v)
	}
}

func TestHandleSchemaFailureReportsBoundedIssues(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	_ = f.processor.Register(tradeDescriptor(), func(context.Context, *actor.Actor, []any) error {
		return nil
	})

	f.processor.Handle(context.Background(), "conn-1", "trade", []any{map[string]any{
		"action": "", "amount": "abc", "targetId": 7, "extra": true,
	}})
	if len(f.observer.notices) != 1 {
		t.Fatalf("notices = %v, want one", f.observer.notices)
	}
	n := f.observer.notices[0]
	if n.reason != ReasonSchema {
		t.Fatalf("reason = %q, want schema", n.reason)
	}
	if len(n.issues) == 0 || len(n.issues) > 3 {
		t.Fatalf("issues = %v, want 1-3 entries", n.issues)
	}
}

func TestHandleCounterIsMonotonicPerEvent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	_ = f.processor.Register(tradeDescriptor(), func(context.Context, *actor.Actor, []any) error {
		return nil
	})
	_ = f.processor.Register(Descriptor{
		Name:   "move",
		Params: []schema.ParamKind{schema.KindActor, schema.KindNumber},
	}, func(context.Context, *actor.Actor, []any) error {
		return nil
	})

	ctx := context.Background()
	f.processor.Handle(ctx, "conn-1", "trade", []any{"bad"})
	f.processor.Handle(ctx, "conn-1", "trade", []any{"bad"})
	f.processor.Handle(ctx, "conn-1", "move", nil)

	if got := f.observer.notices[1].count; got != 2 {
		t.Fatalf("trade counter = %d, want 2", got)
	}
	// A different event keeps its own counter.
	if got := f.observer.notices[2].count; got != 1 {
		t.Fatalf("move counter = %d, want 1", got)
	}
}

func TestHandleSecurityViolationFromHandler(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	_ = f.processor.Register(Descriptor{
		Name:   "loot",
		Params: []schema.ParamKind{schema.KindActor, schema.KindString},
	}, func(context.Context, *actor.Actor, []any) error {
		return apperrors.New(apperrors.CodePermissionDenied, "not your corpse")
	})

	f.processor.Handle(context.Background(), "conn-1", "loot", []any{"corpse-1"})
	if len(f.observer.notices) != 1 || f.observer.notices[0].reason != ReasonSecurityViolation {
		t.Fatalf("notices = %v, want security-violation", f.observer.notices)
	}
}

func TestHandleOrdinaryHandlerErrorIsNotAbuse(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	_ = f.processor.Register(Descriptor{
		Name:   "save",
		Params: []schema.ParamKind{schema.KindActor},
	}, func(context.Context, *actor.Actor, []any) error {
		return errors.New("storage offline")
	})

	// Must not panic, must not count as abuse.
	f.processor.Handle(context.Background(), "conn-1", "save", nil)
	if len(f.observer.notices) != 0 {
		t.Fatalf("notices = %v, want none", f.observer.notices)
	}
}

func TestHandleAuthenticationGate(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	invoked := false
	_ = f.processor.Register(Descriptor{
		Name:       "whisper",
		Visibility: Authenticated,
		Params:     []schema.ParamKind{schema.KindActor, schema.KindString},
	}, func(context.Context, *actor.Actor, []any) error {
		invoked = true
		return nil
	})

	f.processor.Handle(context.Background(), "conn-1", "whisper", []any{"hi"})
	if invoked {
		t.Fatal("handler invoked for unauthenticated actor")
	}
	if len(f.notifier.notices) != 1 {
		t.Fatalf("notices = %v, want one authentication notice", f.notifier.notices)
	}
}

func TestHandleUnknownConnectionOrEventDropped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_ = f.processor.Register(tradeDescriptor(), func(context.Context, *actor.Actor, []any) error {
		return nil
	})

	// Neither may panic.
	f.processor.Handle(context.Background(), "ghost", "trade", nil)
	f.connect("conn-1")
	f.processor.Handle(context.Background(), "conn-1", "bogus", nil)
	if len(f.observer.notices) != 0 {
		t.Fatalf("notices = %v, want none", f.observer.notices)
	}
}

func TestHandleObserverPanicIsContained(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.observer.panics = true
	a := f.connect("conn-1")
	_ = f.processor.Register(tradeDescriptor(), func(context.Context, *actor.Actor, []any) error {
		return nil
	})

	f.processor.Handle(context.Background(), "conn-1", "trade", []any{"bad"})
	// The counter still advanced even though the observer blew up.
	if v, _ := a.Meta("riftgate.invalid.trade"); v.(int) != 1 {
		t.Fatalf("counter = %v, want 1", v)
	}
}

func TestBindSubscribesRegisteredEvents(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.connect("conn-1")
	var got []any
	_ = f.processor.Register(Descriptor{
		Name:   "move",
		Params: []schema.ParamKind{schema.KindActor, schema.KindNumber},
	}, func(_ context.Context, _ *actor.Actor, args []any) error {
		got = args
		return nil
	})

	bus := &recordingTransport{handlers: map[string]transport.EventHandler{}}
	f.processor.Bind(bus)
	h, ok := bus.handlers["move"]
	if !ok {
		t.Fatal("move not subscribed")
	}
	h(context.Background(), "conn-1", []any{float64(9)})
	if len(got) != 1 || got[0] != float64(9) {
		t.Fatalf("handler args = %v", got)
	}
}

type recordingTransport struct {
	handlers map[string]transport.EventHandler
}

func (t *recordingTransport) OnEvent(name string, handler transport.EventHandler) {
	t.handlers[name] = handler
}

func (t *recordingTransport) Send(context.Context, string, transport.Target, ...any) error {
	return nil
}
