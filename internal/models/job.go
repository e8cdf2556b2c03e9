package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobSendEmail      JobType = "send_email"
	JobDeliverWebhook JobType = "deliver_webhook"
)

// JobTypes is the closed set of job types the worker knows how to run.
var JobTypes = []JobType{JobSendEmail, JobDeliverWebhook}

func (t JobType) Valid() bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

const DefaultMaxAttempts = 3

type Job struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Type        JobType         `json:"type" db:"type"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Status      JobStatus       `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	MaxAttempts int             `json:"max_attempts" db:"max_attempts"`
	LastError   *string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	LockedUntil *time.Time      `json:"locked_until,omitempty" db:"locked_until"`
}
