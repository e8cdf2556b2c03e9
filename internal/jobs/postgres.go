package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// PostgresStore requires FOR UPDATE SKIP LOCKED (PostgreSQL 9.5+).
type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `id, type, payload, status, attempts, max_attempts, last_error, created_at, updated_at, locked_until`

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j       models.Job
		payload []byte
	)
	err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.LockedUntil)
	if err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}

func (s *PostgresStore) Insert(ctx context.Context, job *models.Job) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO system_jobs (id, type, payload, status, attempts, max_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		job.ID, job.Type, []byte(job.Payload), job.Status, job.Attempts, job.MaxAttempts, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const claimSQL = `
UPDATE system_jobs
SET status = 'in_progress', updated_at = $1, locked_until = $2
WHERE id = (
	SELECT id FROM system_jobs
	WHERE status = 'pending' AND (locked_until IS NULL OR locked_until <= $1)
	ORDER BY created_at, id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING ` + jobColumns

func (s *PostgresStore) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, claimSQL, now, now.Add(lease)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE system_jobs SET status = 'completed', updated_at = $2, locked_until = NULL
		 WHERE id = $1 AND status = 'in_progress'`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

const failSQL = `
UPDATE system_jobs SET
	attempts = attempts + 1,
	last_error = $2,
	updated_at = $3,
	status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
	locked_until = CASE WHEN attempts + 1 >= max_attempts THEN NULL ELSE $4::timestamptz END
WHERE id = $1 AND status = 'in_progress'
RETURNING status`

func (s *PostgresStore) Fail(ctx context.Context, id uuid.UUID, msg string, now time.Time, retryAt *time.Time) (models.JobStatus, error) {
	var status models.JobStatus
	err := s.db.QueryRow(ctx, failSQL, id, msg, now, retryAt).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotClaimed
	}
	if err != nil {
		return "", fmt.Errorf("fail job: %w", err)
	}
	return status, nil
}

func (s *PostgresStore) Terminate(ctx context.Context, id uuid.UUID, msg string, now time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE system_jobs SET attempts = attempts + 1, last_error = $2, updated_at = $3,
			status = 'failed', locked_until = NULL
		 WHERE id = $1 AND status = 'in_progress'`,
		id, msg, now,
	)
	if err != nil {
		return fmt.Errorf("terminate job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimed
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM system_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) RequeueExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE system_jobs SET
			attempts = attempts + 1,
			last_error = $2,
			updated_at = $1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
			locked_until = NULL
		 WHERE status = 'in_progress' AND locked_until < $1`,
		now, leaseExpiredMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM system_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[models.JobStatus]int)
	for rows.Next() {
		var (
			status models.JobStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
