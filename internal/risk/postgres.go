package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, kind, subject string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO risk_attempts (kind, subject, created_at) VALUES ($1, $2, $3)`,
		kind, subject, at,
	)
	if err != nil {
		return fmt.Errorf("record risk attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountAttempts(ctx context.Context, kind, subject string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM risk_attempts WHERE kind = $1 AND subject = $2 AND created_at > $3`,
		kind, subject, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count risk attempts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, ev models.RiskEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal risk metadata: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO risk_events (id, entity_type, entity_id, risk_type, severity, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.EntityType, ev.EntityID, ev.RiskType, ev.Severity, meta, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert risk event: %w", err)
	}
	return nil
}

// PruneAttempts drops attempts older than cutoff. No window is longer than a
// day, so a daily prune with a two-day cutoff is enough.
func (s *PostgresStore) PruneAttempts(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM risk_attempts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune risk attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
