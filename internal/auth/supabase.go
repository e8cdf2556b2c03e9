package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/breaker"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// SupabaseProvider asks the auth server who a token belongs to. Calls go
// through a circuit breaker so an auth outage fails fast.
type SupabaseProvider struct {
	client  *resty.Client
	breaker *breaker.Breaker
}

type supabaseUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func NewSupabaseProvider(supabaseURL, anonKey string, b *breaker.Breaker) *SupabaseProvider {
	client := resty.New().
		SetBaseURL(supabaseURL+"/auth/v1").
		SetTimeout(15*time.Second).
		SetHeader("apikey", anonKey).
		SetHeader("Accept", "application/json")

	return &SupabaseProvider{client: client, breaker: b}
}

func (p *SupabaseProvider) Identify(ctx context.Context, token string) (models.Identity, error) {
	var (
		user   supabaseUser
		status int
	)
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := p.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&user).
			Get("/user")
		if err != nil {
			return fmt.Errorf("call auth server: %w", err)
		}
		status = resp.StatusCode()
		if status >= 500 {
			return fmt.Errorf("auth server returned %d", status)
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnavailable {
			return models.Identity{}, err
		}
		return models.Identity{}, apperr.Wrap(apperr.KindUnavailable, "identity provider unavailable", err)
	}

	// 4xx means the token was rejected. Only transport errors and 5xx count
	// as breaker failures.
	if status >= http.StatusBadRequest {
		return models.Identity{}, apperr.New(apperr.KindUnauthorized, "invalid session")
	}

	id, err := uuid.Parse(user.ID)
	if err != nil {
		return models.Identity{}, apperr.Wrap(apperr.KindUnauthorized, "invalid user id in session", err)
	}
	return models.Identity{ID: id, Email: user.Email, Phone: user.Phone}, nil
}
