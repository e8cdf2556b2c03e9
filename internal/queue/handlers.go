package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dhandebaz/sangathan-sub001/internal/jobs"
)

type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux: asynq.NewServeMux(),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

// Runner is the part of jobs.Processor the triggers drive.
type Runner interface {
	ProcessNext(ctx context.Context) (jobs.Outcome, error)
	RequeueExpired(ctx context.Context) (int64, error)
}

// ProcessNextHandler processes at most one job per trigger. A handler
// failure is already recorded on the job row, so only store errors fail the
// task.
func ProcessNextHandler(r Runner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p ProcessNextPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &p); err != nil {
				slog.Warn("bad process_next payload", "error", err)
			}
		}
		out, err := r.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if out.Job != nil {
			slog.Debug("trigger processed job", "source", p.Source, "job_id", out.Job.ID, "status", out.Status)
		}
		return nil
	}
}

func RequeueExpiredHandler(r Runner) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		_, err := r.RequeueExpired(ctx)
		return err
	}
}
