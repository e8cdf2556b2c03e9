package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

var ErrNotFound = errors.New("webhook not found")

type Store interface {
	Insert(ctx context.Context, wh *models.Webhook) error
	Get(ctx context.Context, id uuid.UUID) (*models.Webhook, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]models.Webhook, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	// Matching returns the tenant's active webhooks subscribed to event.
	Matching(ctx context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error)
	RecordDelivery(ctx context.Context, d models.WebhookDelivery) error
}

type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, wh *models.Webhook) error {
	eventsJSON, err := json.Marshal(wh.Events)
	if err != nil {
		return fmt.Errorf("marshal webhook events: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO webhooks (organisation_id, url, events, secret, is_active)
		 VALUES ($1, $2, $3, $4, true)
		 RETURNING id, is_active, created_at`,
		wh.TenantID, wh.URL, eventsJSON, wh.Secret,
	).Scan(&wh.ID, &wh.IsActive, &wh.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

const webhookColumns = `id, organisation_id, url, events, secret, is_active, created_at`

func scanWebhook(row pgx.Row) (*models.Webhook, error) {
	var (
		wh     models.Webhook
		events []byte
	)
	if err := row.Scan(&wh.ID, &wh.TenantID, &wh.URL, &events, &wh.Secret, &wh.IsActive, &wh.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(events, &wh.Events); err != nil {
		return nil, fmt.Errorf("decode webhook events: %w", err)
	}
	return &wh, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	wh, err := scanWebhook(s.db.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return wh, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID uuid.UUID) ([]models.Webhook, error) {
	return s.query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE organisation_id = $1 ORDER BY created_at DESC`,
		tenantID)
}

func (s *PostgresStore) Matching(ctx context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error) {
	filter, err := json.Marshal([]string{event})
	if err != nil {
		return nil, fmt.Errorf("marshal event filter: %w", err)
	}
	return s.query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks
		 WHERE organisation_id = $1 AND is_active = true AND events @> $2::jsonb`,
		tenantID, filter)
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]models.Webhook, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		wh, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		webhooks = append(webhooks, *wh)
	}
	return webhooks, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE webhooks SET is_active = false WHERE id = $1 AND organisation_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordDelivery(ctx context.Context, d models.WebhookDelivery) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO webhook_deliveries (webhook_id, event, payload, response_status, attempts, delivered_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.WebhookID, d.Event, []byte(d.Payload), d.ResponseStatus, d.Attempts, d.DeliveredAt, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record webhook delivery: %w", err)
	}
	return nil
}

type MemoryStore struct {
	mu         sync.Mutex
	webhooks   map[uuid.UUID]*models.Webhook
	deliveries []models.WebhookDelivery
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{webhooks: make(map[uuid.UUID]*models.Webhook)}
}

func (m *MemoryStore) Insert(_ context.Context, wh *models.Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh.ID = uuid.New()
	wh.IsActive = true
	wh.CreatedAt = time.Now().UTC()
	cp := *wh
	m.webhooks[wh.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh, ok := m.webhooks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wh
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, tenantID uuid.UUID) ([]models.Webhook, error) {
	return m.filter(func(wh *models.Webhook) bool { return wh.TenantID == tenantID }), nil
}

func (m *MemoryStore) Matching(_ context.Context, tenantID uuid.UUID, event string) ([]models.Webhook, error) {
	return m.filter(func(wh *models.Webhook) bool {
		if wh.TenantID != tenantID || !wh.IsActive {
			return false
		}
		for _, e := range wh.Events {
			if e == event {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryStore) filter(keep func(*models.Webhook) bool) []models.Webhook {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Webhook
	for _, wh := range m.webhooks {
		if keep(wh) {
			out = append(out, *wh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh, ok := m.webhooks[id]
	if !ok || wh.TenantID != tenantID {
		return ErrNotFound
	}
	wh.IsActive = false
	return nil
}

func (m *MemoryStore) RecordDelivery(_ context.Context, d models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, d)
	return nil
}

func (m *MemoryStore) Deliveries() []models.WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WebhookDelivery(nil), m.deliveries...)
}
