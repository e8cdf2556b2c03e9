// Package queue carries triggers for the job processor over asynq. The jobs
// themselves live in Postgres; asynq only says "run the processor now".
package queue

const (
	TypeProcessNext    = "jobs:process_next"
	TypeRequeueExpired = "jobs:requeue_expired"
)

type ProcessNextPayload struct {
	// Source is "schedule", "enqueue" or "manual", for logs only.
	Source  string `json:"source"`
	JobType string `json:"job_type,omitempty"`
}
