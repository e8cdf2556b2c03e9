package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/email"
	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// Notifier is told after a successful enqueue so a worker can pick the job
// up before the next scheduled tick.
type Notifier interface {
	NotifyEnqueued(ctx context.Context, jobType models.JobType) error
}

type Queue struct {
	store       Store
	notifier    Notifier
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

type QueueOption func(*Queue)

func WithNotifier(n Notifier) QueueOption {
	return func(q *Queue) { q.notifier = n }
}

func WithMaxAttempts(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

func NewQueue(store Store, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		store:       store,
		maxAttempts: models.DefaultMaxAttempts,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts a pending job. It reports failure as false and logs the
// cause; callers usually treat queuing as best effort.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, payload any) bool {
	_, ok := q.enqueue(ctx, jobType, payload)
	return ok
}

// EnqueueID is Enqueue for callers that want to follow the job.
func (q *Queue) EnqueueID(ctx context.Context, jobType models.JobType, payload any) (uuid.UUID, bool) {
	return q.enqueue(ctx, jobType, payload)
}

func (q *Queue) EnqueueEmail(ctx context.Context, msg email.Message) bool {
	return q.Enqueue(ctx, models.JobSendEmail, msg)
}

func (q *Queue) enqueue(ctx context.Context, jobType models.JobType, payload any) (uuid.UUID, bool) {
	if !jobType.Valid() {
		metrics.JobsEnqueued.WithLabelValues(string(jobType), "rejected").Inc()
		q.logger.Error("refusing to enqueue unknown job type", "type", jobType)
		return uuid.Nil, false
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			metrics.JobsEnqueued.WithLabelValues(string(jobType), "error").Inc()
			q.logger.Error("marshal job payload", "type", jobType, "error", err)
			return uuid.Nil, false
		}
	}

	now := q.now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     raw,
		Status:      models.JobPending,
		MaxAttempts: q.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.store.Insert(ctx, job); err != nil {
		metrics.JobsEnqueued.WithLabelValues(string(jobType), "error").Inc()
		q.logger.Error("enqueue job", "type", jobType, "error", err)
		return uuid.Nil, false
	}
	metrics.JobsEnqueued.WithLabelValues(string(jobType), "ok").Inc()

	if q.notifier != nil {
		if err := q.notifier.NotifyEnqueued(ctx, jobType); err != nil {
			q.logger.Warn("job notification failed, scheduled trigger will pick it up", "job_id", job.ID, "error", err)
		}
	}
	return job.ID, true
}
