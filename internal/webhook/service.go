// Package webhook lets tenants subscribe HTTP endpoints to events. Deliveries
// run as deliver_webhook jobs.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// Enqueuer is the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload any) bool
}

type Service struct {
	store  Store
	queue  Enqueuer
	logger *slog.Logger
}

func NewService(store Store, queue Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queue: queue, logger: logger}
}

type CreateRequest struct {
	URL    string   `json:"url" validate:"required,http_url"`
	Events []string `json:"events" validate:"required,min=1,dive,required"`
}

// Create registers an endpoint. The returned webhook is the only place the
// signing secret is shown.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req CreateRequest) (*models.Webhook, error) {
	if err := checkEndpoint(req.URL); err != nil {
		return nil, err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	wh := &models.Webhook{
		TenantID: tenantID,
		URL:      req.URL,
		Events:   req.Events,
		Secret:   secret,
	}
	if err := s.store.Insert(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]models.Webhook, error) {
	return s.store.List(ctx, tenantID)
}

func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.store.Delete(ctx, tenantID, id)
}

// Dispatch queues one delivery per active webhook of the tenant subscribed
// to event and reports how many were queued.
func (s *Service) Dispatch(ctx context.Context, tenantID uuid.UUID, event string, payload any) (int, error) {
	hooks, err := s.store.Matching(ctx, tenantID, event)
	if err != nil {
		return 0, fmt.Errorf("find matching webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(map[string]any{
		"event":           event,
		"organisation_id": tenantID,
		"data":            payload,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal webhook payload: %w", err)
	}

	queued := 0
	for _, wh := range hooks {
		if s.queue.Enqueue(ctx, models.JobDeliverWebhook, DeliveryJob{
			WebhookID: wh.ID,
			Event:     event,
			Payload:   body,
		}) {
			queued++
		}
	}
	if queued < len(hooks) {
		s.logger.Warn("some webhook deliveries were not queued", "event", event, "queued", queued, "matched", len(hooks))
	}
	return queued, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(b), nil
}

// checkEndpoint refuses endpoints that point back into the platform's own
// network: localhost names and loopback, private, link-local or unspecified
// address literals.
func checkEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return apperr.Validation("url", "url is not a valid endpoint")
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return apperr.Validation("url", "webhook host is not allowed")
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
			addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
			return apperr.Validation("url", "webhook host is not allowed")
		}
	}
	return nil
}
