package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// Handler runs one job. Any error, including a panic, is a failed attempt.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Registry maps the closed set of job types to handlers.
type Registry struct {
	handlers map[models.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.JobType]Handler)}
}

func (r *Registry) Register(t models.JobType, h Handler) {
	if !t.Valid() {
		panic(fmt.Sprintf("jobs: register unknown job type %q", t))
	}
	r.handlers[t] = h
}

func (r *Registry) lookup(t models.JobType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

const unknownTypeMessage = "unknown job type"

type Config struct {
	// Lease is how long a claim is held before RequeueExpired may take it
	// back.
	Lease time.Duration
	// RetryDelay keeps a failed job out of ClaimNext for this long. Zero
	// retries on the next claim.
	RetryDelay time.Duration
}

type Processor struct {
	store    Store
	registry *Registry
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessor(store Store, registry *Registry, cfg Config, logger *slog.Logger) *Processor {
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, registry: registry, cfg: cfg, logger: logger, now: time.Now}
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Outcome describes one ProcessNext call. Job is nil when nothing was
// pending.
type Outcome struct {
	Job    *models.Job
	Status models.JobStatus
	// Err is the handler's error for failed attempts.
	Err error
}

// ProcessNext claims and runs at most one job. Handler failures are recorded
// on the job and reported in the Outcome; only store failures are returned
// as errors.
func (p *Processor) ProcessNext(ctx context.Context) (Outcome, error) {
	job, err := p.store.ClaimNext(ctx, p.now().UTC(), p.cfg.Lease)
	if err != nil {
		return Outcome{}, err
	}
	if job == nil {
		return Outcome{}, nil
	}

	log := p.logger.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1)

	h, ok := p.registry.lookup(job.Type)
	if !ok {
		log.Warn("no handler for job type, failing job")
		if err := p.store.Terminate(ctx, job.ID, unknownTypeMessage, p.now().UTC()); err != nil {
			return Outcome{Job: job}, fmt.Errorf("terminate job %s: %w", job.ID, err)
		}
		metrics.JobsProcessed.WithLabelValues(string(job.Type), string(models.JobFailed)).Inc()
		return Outcome{Job: job, Status: models.JobFailed, Err: errors.New(unknownTypeMessage)}, nil
	}

	start := time.Now()
	runErr := run(ctx, h, job.Payload)
	now := p.now().UTC()

	if runErr == nil {
		if err := p.store.Complete(ctx, job.ID, now); err != nil {
			return Outcome{Job: job}, fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		metrics.JobsProcessed.WithLabelValues(string(job.Type), string(models.JobCompleted)).Inc()
		log.Info("job completed", "duration", time.Since(start))
		return Outcome{Job: job, Status: models.JobCompleted}, nil
	}

	var retryAt *time.Time
	if p.cfg.RetryDelay > 0 {
		t := now.Add(p.cfg.RetryDelay)
		retryAt = &t
	}
	status, err := p.store.Fail(ctx, job.ID, runErr.Error(), now, retryAt)
	if err != nil {
		return Outcome{Job: job, Err: runErr}, fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	metrics.JobsProcessed.WithLabelValues(string(job.Type), string(status)).Inc()
	if status == models.JobFailed {
		log.Error("job failed permanently", "error", runErr)
	} else {
		log.Warn("job attempt failed, will retry", "error", runErr)
	}
	return Outcome{Job: job, Status: status, Err: runErr}, nil
}

func run(ctx context.Context, h Handler, payload json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h(ctx, payload)
}

type DrainStats struct {
	Claimed   int64 `json:"claimed"`
	Completed int64 `json:"completed"`
	Retrying  int64 `json:"retrying"`
	Failed    int64 `json:"failed"`
}

// Drain runs up to max jobs with up to concurrency concurrent callers and
// stops early once the queue is empty.
func (p *Processor) Drain(ctx context.Context, max, concurrency int) (DrainStats, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	var (
		stats  DrainStats
		budget = int64(max)
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for atomic.AddInt64(&budget, -1) >= 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
				out, err := p.ProcessNext(ctx)
				if err != nil {
					return err
				}
				if out.Job == nil {
					return nil
				}
				atomic.AddInt64(&stats.Claimed, 1)
				switch out.Status {
				case models.JobCompleted:
					atomic.AddInt64(&stats.Completed, 1)
				case models.JobPending:
					atomic.AddInt64(&stats.Retrying, 1)
				case models.JobFailed:
					atomic.AddInt64(&stats.Failed, 1)
				}
			}
			return nil
		})
	}
	err := g.Wait()
	return stats, err
}

// RequeueExpired returns jobs whose lease ran out to the queue.
func (p *Processor) RequeueExpired(ctx context.Context) (int64, error) {
	n, err := p.store.RequeueExpired(ctx, p.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Warn("requeued jobs with expired leases", "count", n)
	}
	return n, nil
}
