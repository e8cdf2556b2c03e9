package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dhandebaz/sangathan-sub001/internal/database"
)

// PostgresStore keeps one row per key in rate_limits. The upsert decides and
// counts in a single statement, so concurrent callers cannot both take the
// last slot.
type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const takeSQL = `
INSERT INTO rate_limits (key, points, window_start, updated_at)
VALUES ($1, 1, $2, $2)
ON CONFLICT (key) DO UPDATE SET
	points = CASE WHEN rate_limits.window_start < $3 THEN 1 ELSE rate_limits.points + 1 END,
	window_start = CASE WHEN rate_limits.window_start < $3 THEN $2 ELSE rate_limits.window_start END,
	updated_at = $2
WHERE rate_limits.window_start < $3 OR rate_limits.points < $4
RETURNING points`

func (s *PostgresStore) Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, int, error) {
	var count int
	err := s.db.QueryRow(ctx, takeSQL, key, now, now.Add(-window), limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflict branch's WHERE rejected the update: window is full.
		return false, limit, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("take rate limit %q: %w", key, err)
	}
	return true, count, nil
}

// Prune deletes windows that ended before cutoff.
func (s *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
