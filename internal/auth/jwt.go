package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// Claims are the fields of a Supabase access token the core reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 access tokens locally with the project secret.
type JWTProvider struct {
	secret []byte
	now    func() time.Time
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), now: time.Now}
}

func (p *JWTProvider) Identify(_ context.Context, tokenStr string) (models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithTimeFunc(p.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, "invalid session", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, "invalid user id in session", err)
	}
	return models.Identity{ID: id, Email: claims.Email, Phone: claims.Phone}, nil
}

// Sign issues a token for identity. Used by tests and local tooling; in
// production tokens come from the identity provider.
func (p *JWTProvider) Sign(identity models.Identity, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		Email: identity.Email,
		Phone: identity.Phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}
