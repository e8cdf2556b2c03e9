// Package jobs is the durable retryable job queue. Workers claim jobs with a
// single atomic statement, so any number of concurrent callers never run the
// same job twice.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrNotClaimed is returned when a job is finished by a caller that no
	// longer holds its claim, for example after its lease was requeued.
	ErrNotClaimed = errors.New("job is not in progress")
)

// Store holds jobs. ClaimNext must pick and mark the oldest eligible pending
// job in one atomic step; a read followed by a write is not enough.
type Store interface {
	Insert(ctx context.Context, job *models.Job) error
	// ClaimNext returns nil when nothing is eligible. Pending jobs with
	// locked_until in the future are waiting out a retry delay.
	ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*models.Job, error)
	Complete(ctx context.Context, id uuid.UUID, now time.Time) error
	// Fail records an attempt. The job returns to pending, eligible again
	// from retryAt when set, or becomes failed once attempts reach
	// max_attempts.
	Fail(ctx context.Context, id uuid.UUID, msg string, now time.Time, retryAt *time.Time) (models.JobStatus, error)
	// Terminate records an attempt and fails the job regardless of attempts.
	Terminate(ctx context.Context, id uuid.UUID, msg string, now time.Time) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// RequeueExpired treats in-progress jobs whose lease ran out as failed
	// attempts.
	RequeueExpired(ctx context.Context, now time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

const leaseExpiredMessage = "lease expired before the job finished"
