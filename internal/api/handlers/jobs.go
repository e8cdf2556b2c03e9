package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/action"
	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/jobs"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

const maxDrainPerRequest = 100

type JobRunner interface {
	ProcessNext(ctx context.Context) (jobs.Outcome, error)
	Drain(ctx context.Context, max, concurrency int) (jobs.DrainStats, error)
}

// JobsHandler serves the cron trigger. The route is guarded by the cron
// secret; there is no session to authorize.
type JobsHandler struct {
	env         *action.Envelope
	runner      JobRunner
	concurrency int
}

func NewJobsHandler(env *action.Envelope, runner JobRunner, concurrency int) *JobsHandler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &JobsHandler{env: env, runner: runner, concurrency: concurrency}
}

type processView struct {
	Processed bool             `json:"processed"`
	JobID     *uuid.UUID       `json:"job_id,omitempty"`
	Type      models.JobType   `json:"type,omitempty"`
	Status    models.JobStatus `json:"status,omitempty"`

	Drain *jobs.DrainStats `json:"drain,omitempty"`
}

// Process runs one job, or up to ?max= jobs when max is above one. A failed
// attempt is reported by status only; its error stays on the job row.
func (h *JobsHandler) Process(w http.ResponseWriter, r *http.Request) {
	max := 1
	if s := r.URL.Query().Get("max"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxDrainPerRequest {
			action.WriteJSON(w, http.StatusOK, action.Failed[processView](h.env,
				apperr.Validation("max", "max must be between 1 and "+strconv.Itoa(maxDrainPerRequest))))
			return
		}
		max = n
	}

	if max > 1 {
		stats, err := h.runner.Drain(r.Context(), max, h.concurrency)
		if err != nil {
			action.WriteJSON(w, http.StatusOK, action.Failed[processView](h.env, err))
			return
		}
		action.WriteJSON(w, http.StatusOK, action.Result[processView]{
			Success: true,
			Data:    processView{Processed: stats.Claimed > 0, Drain: &stats},
		})
		return
	}

	out, err := h.runner.ProcessNext(r.Context())
	if err != nil {
		action.WriteJSON(w, http.StatusOK, action.Failed[processView](h.env, err))
		return
	}
	view := processView{}
	if out.Job != nil {
		view = processView{
			Processed: true,
			JobID:     &out.Job.ID,
			Type:      out.Job.Type,
			Status:    out.Status,
		}
	}
	action.WriteJSON(w, http.StatusOK, action.Result[processView]{Success: true, Data: view})
}
