// Package netevent dispatches transport-level events from connected clients
// and records abuse telemetry for malformed or unauthorized payloads.
package netevent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/tessera-games/riftgate/internal/actor"
	apperrors "github.com/tessera-games/riftgate/internal/platform/errors"
	"github.com/tessera-games/riftgate/internal/schema"
	"github.com/tessera-games/riftgate/internal/transport"
)

// Failure reasons reported to the invalid-payload observer.
const (
	ReasonSchema            = "schema"
	ReasonArgumentCount     = "argument-count"
	ReasonSecurityViolation = "security-violation"
)

// counterPrefix keys the per-actor-per-event abuse counter in session
// metadata. The counter is monotonic for the life of the session.
const counterPrefix = "riftgate.invalid."

// maxReportedIssues bounds the validation issues forwarded to the observer.
const maxReportedIssues = 3

const authRequiredNotice = "authentication required"

// Visibility mirrors command visibility for events.
type Visibility string

const (
	Public        Visibility = "public"
	Authenticated Visibility = "authenticated"
)

// Descriptor declares a net event at registration time. Immutable afterward.
type Descriptor struct {
	Name       string
	Visibility Visibility

	// Params declares a fixed count of scalar positional values; compiled
	// to a Positional schema when no explicit schema is given.
	Params []schema.ParamKind
	// Named validates the payload as one structured object.
	Named *schema.Named
	// Positional is the optional explicit positional schema.
	Positional *schema.Positional
}

// Handler processes one validated event delivery.
type Handler func(ctx context.Context, a *actor.Actor, args []any) error

// Notifier delivers a short notice back to a single connection.
type Notifier interface {
	Notify(ctx context.Context, connectionID, message string) error
}

// Observer receives a notification for every invalid payload. Observer
// failures never reach the dispatch path.
type Observer interface {
	InvalidPayload(ctx context.Context, a *actor.Actor, event, reason string, count int, issues []string)
}

type entry struct {
	desc     Descriptor
	handler  Handler
	compiled *schema.Positional
	disabled bool
}

// Deps are the collaborators a Processor needs.
type Deps struct {
	Directory actor.Directory
	Notifier  Notifier
	Observer  Observer
	Logger    *log.Logger
}

// Processor is the net-event registry and execution pipeline. Events stream
// continuously; every failure is terminal for that single delivery and is
// never re-thrown into the transport layer.
type Processor struct {
	mu      sync.RWMutex
	entries map[string]*entry

	directory actor.Directory
	notifier  Notifier
	observer  Observer
	logger    *log.Logger
}

// NewProcessor creates a net-event processor.
func NewProcessor(deps Deps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{
		entries:   make(map[string]*entry),
		directory: deps.Directory,
		notifier:  deps.Notifier,
		observer:  deps.Observer,
		logger:    logger,
	}
}

// Register inserts an event descriptor. A duplicate name is a logged,
// non-fatal conflict: the new registration wins.
func (p *Processor) Register(desc Descriptor, handler Handler) error {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return fmt.Errorf("event name is required")
	}
	if handler == nil {
		return fmt.Errorf("event %s: handler is required", name)
	}
	if desc.Named != nil && desc.Positional != nil {
		return fmt.Errorf("event %s: at most one explicit schema may be set", name)
	}
	if len(desc.Params) > 0 && desc.Params[0] != schema.KindActor {
		return fmt.Errorf("event %s: first declared parameter must be %q", name, schema.KindActor)
	}

	e := &entry{desc: desc, handler: handler}
	if desc.Named == nil && desc.Positional == nil {
		compiled, err := schema.Compile(desc.Params)
		if err == nil {
			e.compiled = compiled
		} else {
			p.logger.Printf("WARN event %s: %v; descriptor disabled", name, err)
			e.disabled = true
		}
	}

	key := strings.ToLower(name)
	p.mu.Lock()
	if _, exists := p.entries[key]; exists {
		p.logger.Printf("WARN event %s registered twice; last registration wins", name)
	}
	p.entries[key] = e
	p.mu.Unlock()
	return nil
}

// Bind subscribes every registered event on the transport. Call once after
// bootstrap registration completes.
func (p *Processor) Bind(t transport.Transport) {
	p.mu.RLock()
	names := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		names = append(names, e.desc.Name)
	}
	p.mu.RUnlock()

	for _, name := range names {
		event := name
		t.OnEvent(event, func(ctx context.Context, connectionID string, args []any) {
			p.Handle(ctx, connectionID, event, args)
		})
	}
}

// Handle processes one event delivery. It never returns an error: all
// failures are terminal for the delivery and recorded through the observer.
func (p *Processor) Handle(ctx context.Context, connectionID, event string, args []any) {
	a, ok := p.directory.GetByConnection(connectionID)
	if !ok {
		p.logger.Printf("WARN event %s from unknown connection %s dropped", event, connectionID)
		return
	}

	p.mu.RLock()
	e, known := p.entries[strings.ToLower(event)]
	p.mu.RUnlock()
	if !known {
		p.logger.Printf("WARN unknown event %s from %s dropped", event, connectionID)
		return
	}
	if e.disabled {
		return
	}
	desc := e.desc

	if desc.Visibility == Authenticated && !a.Authenticated() {
		p.notify(ctx, a, authRequiredNotice)
		return
	}

	validated, reason, issues := p.validate(e, args)
	if reason != "" {
		p.recordInvalid(ctx, a, desc.Name, reason, issues)
		return
	}

	if err := e.handler(ctx, a, validated); err != nil {
		if apperrors.CodeOf(err).SecurityClass() {
			p.recordInvalid(ctx, a, desc.Name, ReasonSecurityViolation, nil)
			return
		}
		p.logger.Printf("ERROR event %s handler failed for %s: %v", desc.Name, connectionID, err)
	}
}

// validate checks the payload against the event's schema. It returns the
// validated arguments, or a failure reason plus bounded issues.
func (p *Processor) validate(e *entry, args []any) ([]any, string, []string) {
	if e.desc.Named != nil {
		if len(args) != 1 {
			return nil, ReasonArgumentCount, nil
		}
		obj, ok := args[0].(map[string]any)
		if !ok {
			return nil, ReasonArgumentCount, nil
		}
		validated, err := e.desc.Named.Validate(obj)
		if err != nil {
			return nil, ReasonSchema, issueList(err)
		}
		ordered := make([]any, 0, len(e.desc.Named.Fields))
		for _, f := range e.desc.Named.Fields {
			ordered = append(ordered, validated[f.Name])
		}
		return ordered, "", nil
	}

	positional := e.desc.Positional
	if positional == nil {
		positional = e.compiled
	}
	if len(args) != positional.Len() {
		return nil, ReasonArgumentCount, nil
	}
	validated, err := positional.Validate(args)
	if err != nil {
		return nil, ReasonSchema, issueList(err)
	}
	return validated, "", nil
}

// recordInvalid bumps the session abuse counter and notifies the observer.
func (p *Processor) recordInvalid(ctx context.Context, a *actor.Actor, event, reason string, issues []string) {
	count := a.IncrementMeta(counterPrefix + event)
	if p.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("ERROR invalid-payload observer panicked: %v", r)
		}
	}()
	p.observer.InvalidPayload(ctx, a, event, reason, count, issues)
}

func (p *Processor) notify(ctx context.Context, a *actor.Actor, message string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, a.ConnectionID(), message); err != nil {
		p.logger.Printf("WARN notify %s failed: %v", a.ConnectionID(), err)
	}
}

func issueList(err error) []string {
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	issues := make([]string, 0, maxReportedIssues)
	for i, issue := range verr.Issues {
		if i == maxReportedIssues {
			break
		}
		issues = append(issues, issue.String())
	}
	return issues
}
