package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// NewScheduler emits a process_next trigger every interval and a lease sweep
// every minute. Triggers that find nothing to do are cheap.
func NewScheduler(opt asynq.RedisConnOpt, interval time.Duration) (*asynq.Scheduler, error) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
			slog.Error("scheduled trigger not enqueued", "type", task.Type(), "error", err)
		},
	})

	payload, err := json.Marshal(ProcessNextPayload{Source: "schedule"})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := s.Register(fmt.Sprintf("@every %s", interval), asynq.NewTask(TypeProcessNext, payload),
		asynq.MaxRetry(0), asynq.Timeout(2*time.Minute)); err != nil {
		return nil, fmt.Errorf("register %s: %w", TypeProcessNext, err)
	}
	if _, err := s.Register("@every 1m", asynq.NewTask(TypeRequeueExpired, nil),
		asynq.MaxRetry(0), asynq.Timeout(time.Minute)); err != nil {
		return nil, fmt.Errorf("register %s: %w", TypeRequeueExpired, err)
	}
	return s, nil
}
