// Package auth resolves who is acting and on behalf of which tenant.
package auth

import (
	"context"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// IdentityProvider turns a session token into the identity it belongs to.
// An invalid or expired token is an apperr.KindUnauthorized error; a provider
// outage is apperr.KindUnavailable.
type IdentityProvider interface {
	Identify(ctx context.Context, token string) (models.Identity, error)
}
