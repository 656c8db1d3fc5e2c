package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessera-games/riftgate/internal/access"
	"github.com/tessera-games/riftgate/internal/actor"
	apperrors "github.com/tessera-games/riftgate/internal/platform/errors"
	"github.com/tessera-games/riftgate/internal/ratelimit"
	"github.com/tessera-games/riftgate/internal/schema"
)

// authRequiredNotice is the single notification sent to an actor blocked by
// the authentication gate.
const authRequiredNotice = "authentication required"

// Notifier delivers a short notice back to a single connection.
type Notifier interface {
	Notify(ctx context.Context, connectionID, message string) error
}

// ViolationSink receives every security-class rejection. Sink failures are
// contained and never reach the dispatch path.
type ViolationSink interface {
	SecurityViolation(ctx context.Context, a *actor.Actor, name string, cause error)
}

// Deps are the collaborators a Service needs. Registry and Access are
// required; the rest degrade to no-ops when absent.
type Deps struct {
	Registry   *Registry
	Access     *access.Service
	Limiter    *ratelimit.Limiter
	Notifier   Notifier
	Violations ViolationSink
	Logger     *log.Logger
}

// Service executes registered commands locally.
type Service struct {
	registry   *Registry
	access     *access.Service
	limiter    *ratelimit.Limiter
	notifier   Notifier
	violations ViolationSink
	logger     *log.Logger
	tracer     trace.Tracer
}

// NewService creates a command dispatch service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		registry:   deps.Registry,
		access:     deps.Access,
		limiter:    deps.Limiter,
		notifier:   deps.Notifier,
		violations: deps.Violations,
		logger:     logger,
		tracer:     otel.Tracer("riftgate/dispatch"),
	}
}

// Register adds a command to the registry.
func (s *Service) Register(desc Descriptor, handler Handler) error {
	return s.registry.Register(desc, handler)
}

// Commands lists registered commands for help surfaces.
func (s *Service) Commands() []Info {
	return s.registry.Commands()
}

// Lookup returns the descriptor for a command name.
func (s *Service) Lookup(name string) (Descriptor, error) {
	e, ok := s.registry.lookup(name)
	if !ok {
		return Descriptor{}, apperrors.WithMetadata(apperrors.CodeCommandNotFound,
			"unknown command", map[string]string{"command": name})
	}
	return e.desc, nil
}

// Authorize runs the security pipeline for a command without executing it:
// authentication gate, rank/permission enforcement, throttling, and
// actor-state gating. The distributed router calls this before forwarding so
// a remote owner never receives a call a local execution would have
// rejected. The returned error is the same one a local execution produces.
func (s *Service) Authorize(ctx context.Context, a *actor.Actor, name string) (Descriptor, error) {
	e, ok := s.registry.lookup(name)
	if !ok {
		return Descriptor{}, apperrors.WithMetadata(apperrors.CodeCommandNotFound,
			"unknown command", map[string]string{"command": name})
	}
	if e.disabled {
		return e.desc, apperrors.WithMetadata(apperrors.CodeSchemaMismatch,
			"command disabled by configuration error", map[string]string{"command": e.desc.Name})
	}
	if err := s.guard(ctx, a, e.desc); err != nil {
		return e.desc, err
	}
	return e.desc, nil
}

// guard applies the ordered security pipeline. Security-class failures are
// reported to the violation sink here so local execution and remote routing
// produce identical observer traffic.
func (s *Service) guard(ctx context.Context, a *actor.Actor, desc Descriptor) error {
	if desc.Visibility == Authenticated && !a.Authenticated() {
		s.notify(ctx, a, authRequiredNotice)
		return apperrors.WithMetadata(apperrors.CodeUnauthenticated,
			"authentication required", map[string]string{"command": desc.Name})
	}

	if err := s.access.Enforce(ctx, a, access.Requirements{
		MinRank:    desc.Security.MinRank,
		Permission: desc.Security.Permission,
	}); err != nil {
		s.reportViolation(ctx, a, desc.Name, err)
		return err
	}

	if throttle := desc.Security.Throttle; throttle != nil && s.limiter != nil {
		key := ratelimit.Key(a.ConnectionID(), desc.Name)
		if !s.limiter.Allow(key, throttle.Limit, throttle.Window) {
			err := apperrors.WithMetadata(apperrors.CodeRateLimited,
				"call frequency exceeded", map[string]string{"command": desc.Name})
			s.reportViolation(ctx, a, desc.Name, err)
			return err
		}
	}

	for _, state := range desc.Security.RequiredStates {
		if !a.HasState(state) {
			err := apperrors.WithMetadata(apperrors.CodeStateBlocked,
				"required actor state missing", map[string]string{"state": state})
			s.reportViolation(ctx, a, desc.Name, err)
			return err
		}
	}
	for _, state := range desc.Security.ForbiddenStates {
		if a.HasState(state) {
			err := apperrors.WithMetadata(apperrors.CodeStateBlocked,
				"forbidden actor state present", map[string]string{"state": state})
			s.reportViolation(ctx, a, desc.Name, err)
			return err
		}
	}
	return nil
}

// Execute runs a command through the full pipeline. The authentication gate
// blocks silently: the actor is notified once and Execute returns (nil, nil).
// Security-class failures surface as a generic denial; validation failures
// carry the command's usage hint.
func (s *Service) Execute(ctx context.Context, a *actor.Actor, name string, rawArgs []any) (any, error) {
	ctx, span := s.tracer.Start(ctx, "dispatch.Execute",
		trace.WithAttributes(attribute.String("command", name)))
	defer span.End()

	e, ok := s.registry.lookup(name)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeCommandNotFound,
			"unknown command", map[string]string{"command": name})
	}
	desc := e.desc

	if e.disabled {
		return nil, apperrors.WithMetadata(apperrors.CodeSchemaMismatch,
			"command disabled by configuration error", map[string]string{"command": desc.Name})
	}

	if err := s.guard(ctx, a, desc); err != nil {
		if apperrors.IsCode(err, apperrors.CodeUnauthenticated) {
			return nil, nil
		}
		if denial := apperrors.Denial(err); denial != nil {
			return nil, denial
		}
		return nil, err
	}

	return s.run(ctx, a, e, rawArgs)
}

// ExecuteDelegated runs a command that already passed the security pipeline
// at the forwarding router. The guard is not re-run: the throttle is
// stateful, and charging it again here would deny calls a local execution
// would have allowed. Validation still runs against the raw arguments.
func (s *Service) ExecuteDelegated(ctx context.Context, a *actor.Actor, name string, rawArgs []any) (any, error) {
	ctx, span := s.tracer.Start(ctx, "dispatch.ExecuteDelegated",
		trace.WithAttributes(attribute.String("command", name)))
	defer span.End()

	e, ok := s.registry.lookup(name)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeCommandNotFound,
			"unknown command", map[string]string{"command": name})
	}
	if e.disabled {
		return nil, apperrors.WithMetadata(apperrors.CodeSchemaMismatch,
			"command disabled by configuration error", map[string]string{"command": e.desc.Name})
	}
	return s.run(ctx, a, e, rawArgs)
}

// run validates arguments and invokes the handler. A descriptor registered
// without a handler is an ownership stub for routing; invoking it locally
// is a configuration error, not a panic.
func (s *Service) run(ctx context.Context, a *actor.Actor, e *entry, rawArgs []any) (any, error) {
	desc := e.desc

	if e.handler == nil {
		return nil, apperrors.WithMetadata(apperrors.CodeDescriptorInvalid,
			"command has no local handler", map[string]string{
				"command": desc.Name,
				"owner":   desc.Owner,
			})
	}

	args, err := s.validateArgs(ctx, e, rawArgs)
	if err != nil {
		return nil, err
	}

	if desc.Rest && len(args) > 0 {
		args = flattenRest(args)
	}
	return e.handler(ctx, a, args)
}

// validateArgs resolves the command's schema and validates rawArgs.
func (s *Service) validateArgs(_ context.Context, e *entry, rawArgs []any) ([]any, error) {
	desc := e.desc

	if !desc.declaresParams() {
		if len(rawArgs) > 0 {
			return nil, s.usageError(desc, "command takes no arguments")
		}
		return nil, nil
	}

	if desc.Named != nil {
		return s.validateNamed(e, rawArgs)
	}

	positional := desc.Positional
	if positional == nil {
		positional = e.compiled
	}
	if positional == nil {
		// Declared parameters but nothing to validate them with. This is a
		// developer error, not a client error: disable the descriptor.
		s.logger.Printf("ERROR command %s: no schema derivable; descriptor disabled", desc.Name)
		s.registry.disable(desc.Name)
		return nil, apperrors.WithMetadata(apperrors.CodeSchemaMismatch,
			"no validation schema for declared parameters", map[string]string{"command": desc.Name})
	}

	reconciled := schema.Reconcile(rawArgs, positional)
	validated, err := positional.Validate(reconciled)
	if err != nil {
		return nil, s.validationError(desc, err)
	}
	return validated, nil
}

// validateNamed maps positional raw arguments onto the declared parameter
// names and validates them as one object.
func (s *Service) validateNamed(e *entry, rawArgs []any) ([]any, error) {
	desc := e.desc

	if !e.checkedNames {
		if err := desc.Named.CheckParams(desc.ParamNames); err != nil {
			s.logger.Printf("ERROR command %s: %v; descriptor disabled", desc.Name, err)
			s.registry.disable(desc.Name)
			return nil, apperrors.Wrap(apperrors.CodeSchemaMismatch,
				"schema keys do not match declared parameters", err)
		}
		e.checkedNames = true
	}

	if len(rawArgs) != len(desc.ParamNames) {
		return nil, s.usageError(desc,
			fmt.Sprintf("expected %d arguments, got %d", len(desc.ParamNames), len(rawArgs)))
	}
	obj := make(map[string]any, len(rawArgs))
	for i, name := range desc.ParamNames {
		obj[name] = rawArgs[i]
	}

	validated, err := desc.Named.Validate(obj)
	if err != nil {
		return nil, s.validationError(desc, err)
	}

	ordered := make([]any, len(desc.ParamNames))
	for i, name := range desc.ParamNames {
		ordered[i] = validated[name]
	}
	return ordered, nil
}

func (s *Service) usageError(desc Descriptor, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeValidationFailure, reason, map[string]string{
		"command": desc.Name,
		"usage":   desc.Usage,
	})
}

func (s *Service) validationError(desc Descriptor, err error) error {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return &apperrors.Error{
			Code:    apperrors.CodeValidationFailure,
			Message: verr.Error(),
			Metadata: map[string]string{
				"command": desc.Name,
				"usage":   desc.Usage,
			},
			Cause: verr,
		}
	}
	return s.usageError(desc, err.Error())
}

// notify sends a notice to the actor, swallowing transport failures.
func (s *Service) notify(ctx context.Context, a *actor.Actor, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, a.ConnectionID(), message); err != nil {
		s.logger.Printf("WARN notify %s failed: %v", a.ConnectionID(), err)
	}
}

// reportViolation feeds the violation sink; sink panics and errors must
// never reach the dispatch path.
func (s *Service) reportViolation(ctx context.Context, a *actor.Actor, name string, cause error) {
	if s.violations == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("ERROR violation sink panicked: %v", r)
		}
	}()
	s.violations.SecurityViolation(ctx, a, name, cause)
}

// flattenRest expands a final array value into discrete trailing arguments.
func flattenRest(args []any) []any {
	last := args[len(args)-1]
	switch tail := last.(type) {
	case []string:
		out := append([]any(nil), args[:len(args)-1]...)
		for _, v := range tail {
			out = append(out, v)
		}
		return out
	case []any:
		return append(append([]any(nil), args[:len(args)-1]...), tail...)
	default:
		return args
	}
}
