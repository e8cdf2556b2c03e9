package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type PostgresStore struct {
	db  database.DBTX
	now func() time.Time
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var (
		t    models.Tenant
		caps []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, name, slug, status, is_suspended, legal_hold, capabilities, created_at, updated_at
		 FROM organisations WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Status, &t.Suspended, &t.LegalHold, &caps, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organisation: %w", err)
	}
	if t.Capabilities, err = decodeCapabilities(caps); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) ActiveMembership(ctx context.Context, identityID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.db.QueryRow(ctx,
		`SELECT id, organisation_id, user_id, role, status, is_selected, created_at
		 FROM memberships
		 WHERE user_id = $1 AND status = 'active'
		 ORDER BY is_selected DESC, created_at ASC
		 LIMIT 1`, identityID,
	).Scan(&m.ID, &m.TenantID, &m.IdentityID, &m.Role, &m.Status, &m.Selected, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active membership: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE organisations SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set organisation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountActiveMembers(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM memberships WHERE organisation_id = $1 AND status = 'active'`, id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active members: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountCompletedEvents(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM events WHERE organisation_id = $1 AND status = 'completed'`, id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed events: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Capabilities(ctx context.Context, id uuid.UUID) (models.Capabilities, error) {
	var caps []byte
	err := s.db.QueryRow(ctx, `SELECT capabilities FROM organisations WHERE id = $1`, id).Scan(&caps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get capabilities: %w", err)
	}
	return decodeCapabilities(caps)
}

// mergeCapabilitiesSQL locks the row first; a concurrent merge waits and then
// diffs against the committed map, so it sees nothing left to change.
const mergeCapabilitiesSQL = `
WITH target AS (
    SELECT id, capabilities FROM organisations WHERE id = $1 FOR UPDATE
), diff AS (
    SELECT COALESCE(jsonb_object_agg(n.key, n.value), '{}'::jsonb) AS changed
    FROM target, jsonb_each($2::jsonb) AS n
    WHERE target.capabilities -> n.key IS DISTINCT FROM n.value
)
UPDATE organisations o
SET capabilities = o.capabilities || diff.changed,
    updated_at = CASE WHEN diff.changed = '{}'::jsonb THEN o.updated_at ELSE $3 END
FROM diff
WHERE o.id = $1
RETURNING diff.changed`

func (s *PostgresStore) MergeCapabilities(ctx context.Context, id uuid.UUID, changed models.Capabilities) (models.Capabilities, error) {
	raw, err := json.Marshal(changed)
	if err != nil {
		return nil, fmt.Errorf("marshal capabilities: %w", err)
	}
	var applied []byte
	err = s.db.QueryRow(ctx, mergeCapabilitiesSQL, id, raw, s.now().UTC()).Scan(&applied)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("merge capabilities: %w", err)
	}
	return decodeCapabilities(applied)
}

func (s *PostgresStore) ReplaceCapabilities(ctx context.Context, id uuid.UUID, caps models.Capabilities) error {
	return s.writeCapabilities(ctx,
		`UPDATE organisations SET capabilities = $2::jsonb, updated_at = $3 WHERE id = $1`,
		id, caps)
}

func (s *PostgresStore) writeCapabilities(ctx context.Context, query string, id uuid.UUID, caps models.Capabilities) error {
	raw, err := json.Marshal(caps)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, id, raw, s.now().UTC())
	if err != nil {
		return fmt.Errorf("update capabilities: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeCapabilities(raw []byte) (models.Capabilities, error) {
	caps := models.Capabilities{}
	if len(raw) == 0 {
		return caps, nil
	}
	if err := json.Unmarshal(raw, &caps); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	return caps, nil
}
