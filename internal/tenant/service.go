// Package tenant reads and updates organisations and their memberships.
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

var ErrNotFound = errors.New("organisation not found")

type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	// ActiveMembership returns the membership the identity currently works
	// in, or nil when it has no active membership anywhere.
	ActiveMembership(ctx context.Context, identityID uuid.UUID) (*models.Membership, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error
	CountActiveMembers(ctx context.Context, id uuid.UUID) (int, error)
	CountCompletedEvents(ctx context.Context, id uuid.UUID) (int, error)
	Capabilities(ctx context.Context, id uuid.UUID) (models.Capabilities, error)
	// MergeCapabilities overlays changed onto the stored map under the row
	// lock and returns the keys whose stored value actually differed. Two
	// concurrent merges of the same keys never both report them.
	MergeCapabilities(ctx context.Context, id uuid.UUID, changed models.Capabilities) (models.Capabilities, error)
	ReplaceCapabilities(ctx context.Context, id uuid.UUID, caps models.Capabilities) error
}
