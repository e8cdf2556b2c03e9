package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
	"github.com/dhandebaz/sangathan-sub001/internal/tenant"
)

// Principal is the resolved authorization context for one request.
type Principal struct {
	Identity  models.Identity
	TenantID  uuid.UUID
	Role      models.Role
	Suspended bool
	LegalHold bool
}

func (p Principal) ActorID() *uuid.UUID {
	id := p.Identity.ID
	return &id
}

type Directory interface {
	ActiveMembership(ctx context.Context, identityID uuid.UUID) (*models.Membership, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Resolver builds a Principal from a session token. Nothing is cached: every
// call re-reads the membership so role changes apply on the next request.
type Resolver struct {
	provider  IdentityProvider
	directory Directory
}

func NewResolver(provider IdentityProvider, directory Directory) *Resolver {
	return &Resolver{provider: provider, directory: directory}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, apperr.ErrUnauthorized
	}

	identity, err := r.provider.Identify(ctx, token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnavailable {
			return Principal{}, err
		}
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, "authentication required", err)
	}

	m, err := r.directory.ActiveMembership(ctx, identity.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve membership: %w", err)
	}
	if m == nil {
		return Principal{}, apperr.New(apperr.KindUnauthorized, "no active membership")
	}
	if !m.Role.Valid() {
		return Principal{}, apperr.Newf(apperr.KindInvalidState, "membership %s has unknown role %q", m.ID, m.Role)
	}

	org, err := r.directory.GetByID(ctx, m.TenantID)
	if errors.Is(err, tenant.ErrNotFound) {
		return Principal{}, apperr.Newf(apperr.KindInvalidState, "membership %s references missing organisation", m.ID)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("resolve organisation: %w", err)
	}

	return Principal{
		Identity:  identity,
		TenantID:  m.TenantID,
		Role:      m.Role,
		Suspended: org.Suspended,
		LegalHold: org.LegalHold,
	}, nil
}

// RequireRole resolves the token and checks the role against allowed.
func (r *Resolver) RequireRole(ctx context.Context, token string, allowed ...models.Role) (Principal, error) {
	p, err := r.Resolve(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if !slices.Contains(allowed, p.Role) {
		return Principal{}, apperr.Newf(apperr.KindForbidden, "role %s is not allowed to perform this action", p.Role)
	}
	return p, nil
}
