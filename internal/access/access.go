// Package access evaluates rank and permission requirements against a
// caller's principal record.
package access

import (
	"context"
	"strconv"
	"sync"

	"github.com/tessera-games/riftgate/internal/actor"
	apperrors "github.com/tessera-games/riftgate/internal/platform/errors"
)

// Wildcard is the permission string matching any requested permission.
const Wildcard = "*"

// Principal is the authorization record for an authenticated actor.
type Principal struct {
	AccountID   string
	Rank        int
	Permissions []string
}

// Allows reports whether the principal holds the permission, either exactly
// or through the wildcard.
func (p *Principal) Allows(permission string) bool {
	for _, held := range p.Permissions {
		if held == permission || held == Wildcard {
			return true
		}
	}
	return false
}

// Provider resolves a principal record for an actor. Pluggable per
// deployment. A nil principal with a nil error means "no record"; the
// service fails closed in that case.
type Provider interface {
	Resolve(ctx context.Context, a *actor.Actor) (*Principal, error)
}

// Requirements is the guard input for Enforce. Zero values mean the check
// is absent: MinRank 0 imposes no rank floor, an empty Permission imposes
// no permission check.
type Requirements struct {
	MinRank    int
	Permission string
}

// Service is the single guard entry point for the dispatch pipeline.
// Principals are resolved lazily through the provider and cached per
// account until Refresh is called.
type Service struct {
	provider Provider

	mu    sync.Mutex
	cache map[string]*Principal
}

// NewService creates an access control service backed by provider.
func NewService(provider Provider) *Service {
	return &Service{
		provider: provider,
		cache:    make(map[string]*Principal),
	}
}

// Resolve returns the actor's principal, consulting the cache first.
// An unauthenticated actor or a provider miss resolves to nil.
func (s *Service) Resolve(ctx context.Context, a *actor.Actor) (*Principal, error) {
	accountID := a.AccountID()
	if accountID == "" {
		return nil, nil
	}

	s.mu.Lock()
	cached, ok := s.cache[accountID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	principal, err := s.provider.Resolve(ctx, a)
	if err != nil {
		return nil, err
	}
	if principal != nil {
		s.mu.Lock()
		s.cache[accountID] = principal
		s.mu.Unlock()
	}
	return principal, nil
}

// Refresh discards the cached principal and re-resolves it.
func (s *Service) Refresh(ctx context.Context, a *actor.Actor) (*Principal, error) {
	s.mu.Lock()
	delete(s.cache, a.AccountID())
	s.mu.Unlock()
	return s.Resolve(ctx, a)
}

// HasRank reports whether the actor's resolved rank meets minRank.
// Fails closed: no resolvable principal means false.
func (s *Service) HasRank(ctx context.Context, a *actor.Actor, minRank int) bool {
	principal, err := s.Resolve(ctx, a)
	if err != nil || principal == nil {
		return false
	}
	return principal.Rank >= minRank
}

// HasPermission reports whether the actor's principal holds the permission.
func (s *Service) HasPermission(ctx context.Context, a *actor.Actor, permission string) bool {
	principal, err := s.Resolve(ctx, a)
	if err != nil || principal == nil {
		return false
	}
	return principal.Allows(permission)
}

// Enforce evaluates whichever requirements are present and returns a
// security-violation error identifying the failed check. This is the guard
// the rest of the system calls; the individual checks exist for
// introspection surfaces only.
func (s *Service) Enforce(ctx context.Context, a *actor.Actor, req Requirements) error {
	if req.MinRank <= 0 && req.Permission == "" {
		return nil
	}

	principal, err := s.Resolve(ctx, a)
	if err != nil {
		return apperrors.Wrap(apperrors.CodePrincipalUnresolved, "principal resolution failed", err)
	}
	if principal == nil {
		return apperrors.New(apperrors.CodePrincipalUnresolved, "no principal record")
	}

	if req.MinRank > 0 && principal.Rank < req.MinRank {
		return apperrors.WithMetadata(apperrors.CodeRankViolation, "rank below minimum", map[string]string{
			"rank":     strconv.Itoa(principal.Rank),
			"min_rank": strconv.Itoa(req.MinRank),
		})
	}
	if req.Permission != "" && !principal.Allows(req.Permission) {
		return apperrors.WithMetadata(apperrors.CodePermissionDenied, "missing permission", map[string]string{
			"permission": req.Permission,
		})
	}
	return nil
}
