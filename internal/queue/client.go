package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dhandebaz/sangathan-sub001/internal/config"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client *asynq.Client
}

func NewClient(opt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(opt)}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// NotifyEnqueued asks a worker to process the queue now instead of waiting
// for the next scheduled tick.
func (c *Client) NotifyEnqueued(ctx context.Context, jobType models.JobType) error {
	return c.enqueue(ctx, TypeProcessNext, ProcessNextPayload{Source: "enqueue", JobType: string(jobType)},
		asynq.MaxRetry(0), asynq.Timeout(2*time.Minute))
}

func (c *Client) TriggerProcess(ctx context.Context) error {
	return c.enqueue(ctx, TypeProcessNext, ProcessNextPayload{Source: "manual"},
		asynq.MaxRetry(0), asynq.Timeout(2*time.Minute))
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload interface{}, opts ...asynq.Option) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
