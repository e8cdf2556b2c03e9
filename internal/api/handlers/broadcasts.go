package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dhandebaz/sangathan-sub001/internal/action"
	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/audit"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/capability"
	"github.com/dhandebaz/sangathan-sub001/internal/email"
	"github.com/dhandebaz/sangathan-sub001/internal/jobs"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
	"github.com/dhandebaz/sangathan-sub001/internal/ratelimit"
	"github.com/dhandebaz/sangathan-sub001/internal/risk"
	"github.com/dhandebaz/sangathan-sub001/internal/webhook"
)

const (
	ActionBroadcastQueued = "broadcast_queued"
	EventBroadcastQueued  = "broadcast.queued"

	broadcastsPerHour = 10
)

type BroadcastHandler struct {
	env      *action.Envelope
	caps     *capability.Service
	limiter  *ratelimit.Limiter
	risk     *risk.Engine
	queue    *jobs.Queue
	audit    *audit.Service
	webhooks *webhook.Service
}

func NewBroadcastHandler(env *action.Envelope, caps *capability.Service, limiter *ratelimit.Limiter,
	engine *risk.Engine, queue *jobs.Queue, auditSvc *audit.Service, webhooks *webhook.Service) *BroadcastHandler {
	return &BroadcastHandler{
		env:      env,
		caps:     caps,
		limiter:  limiter,
		risk:     engine,
		queue:    queue,
		audit:    auditSvc,
		webhooks: webhooks,
	}
}

type BroadcastRequest struct {
	Subject    string   `json:"subject" validate:"required,max=200"`
	HTML       string   `json:"html" validate:"required"`
	Recipients []string `json:"recipients" validate:"required,min=1,max=500,dive,required,email"`
}

type broadcastView struct {
	Queued  int `json:"queued"`
	Dropped int `json:"dropped"`
}

func (h *BroadcastHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		action.WriteJSON(w, http.StatusAccepted, action.Failed[broadcastView](h.env, err))
		return
	}
	res := action.Execute(r.Context(), h.env, token(r), req, h.send, models.RoleAdmin, models.RoleEditor)
	action.WriteJSON(w, http.StatusAccepted, res)
}

func (h *BroadcastHandler) send(ctx context.Context, req BroadcastRequest, p auth.Principal) (broadcastView, error) {
	enabled, err := h.caps.Enabled(ctx, p.TenantID, models.CapBroadcasts)
	if err != nil {
		return broadcastView{}, err
	}
	if !enabled {
		return broadcastView{}, apperr.New(apperr.KindForbidden, "broadcasts are not enabled for this organisation")
	}
	if !h.limiter.Check(ctx, "broadcast:"+p.TenantID.String(), broadcastsPerHour, time.Hour) {
		return broadcastView{}, errTooManyRequests
	}
	if err := h.risk.CheckBroadcast(ctx, p.TenantID).Err(); err != nil {
		return broadcastView{}, err
	}

	var out broadcastView
	tags := []email.Tag{{Name: "organisation_id", Value: p.TenantID.String()}}
	for _, rcpt := range req.Recipients {
		ok := h.queue.EnqueueEmail(ctx, email.Message{
			To:      []string{rcpt},
			Subject: req.Subject,
			HTML:    req.HTML,
			Tags:    tags,
		})
		if ok {
			out.Queued++
		} else {
			out.Dropped++
		}
	}

	h.audit.Append(ctx, models.AuditRecord{
		TenantID:      p.TenantID,
		ActorID:       p.ActorID(),
		Action:        ActionBroadcastQueued,
		ResourceTable: "broadcasts",
		Details: map[string]any{
			"subject":    req.Subject,
			"recipients": len(req.Recipients),
			"queued":     out.Queued,
		},
	})
	if _, err := h.webhooks.Dispatch(ctx, p.TenantID, EventBroadcastQueued, map[string]any{
		"subject": req.Subject,
		"queued":  out.Queued,
	}); err != nil {
		// Emails are queued already; webhook notices are best effort.
		slog.WarnContext(ctx, "broadcast webhook dispatch failed", "organisation_id", p.TenantID, "error", err)
	}
	return out, nil
}
