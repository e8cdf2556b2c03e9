package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dhandebaz/sangathan-sub001/internal/action"
	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/audit"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type AdminHandler struct {
	env      *action.Envelope
	auditSvc *audit.Service
}

func NewAdminHandler(env *action.Envelope, auditSvc *audit.Service) *AdminHandler {
	return &AdminHandler{env: env, auditSvc: auditSvc}
}

type auditInput struct {
	Action    string     `json:"action" validate:"max=100"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Limit     int        `json:"limit" validate:"min=0,max=500"`
	Offset    int        `json:"offset" validate:"min=0"`
}

type auditView struct {
	AuditLogs []models.AuditRecord `json:"audit_logs"`
	Count     int                  `json:"count"`
}

func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	in, err := parseAuditQuery(r)
	if err != nil {
		action.WriteJSON(w, http.StatusOK, action.Failed[auditView](h.env, err))
		return
	}

	res := action.Execute(r.Context(), h.env, token(r), in,
		func(ctx context.Context, in auditInput, p auth.Principal) (auditView, error) {
			logs, err := h.auditSvc.Query(ctx, p.TenantID, audit.Query{
				StartDate: in.StartDate,
				EndDate:   in.EndDate,
				Action:    in.Action,
				Limit:     in.Limit,
				Offset:    in.Offset,
			})
			if err != nil {
				return auditView{}, err
			}
			if logs == nil {
				logs = []models.AuditRecord{}
			}
			return auditView{AuditLogs: logs, Count: len(logs)}, nil
		}, models.RoleAdmin)
	action.WriteJSON(w, http.StatusOK, res)
}

func parseAuditQuery(r *http.Request) (auditInput, error) {
	q := r.URL.Query()
	in := auditInput{Action: q.Get("action")}

	var err error
	if s := q.Get("limit"); s != "" {
		if in.Limit, err = strconv.Atoi(s); err != nil {
			return in, apperr.Validation("limit", "limit must be a number")
		}
	}
	if s := q.Get("offset"); s != "" {
		if in.Offset, err = strconv.Atoi(s); err != nil {
			return in, apperr.Validation("offset", "offset must be a number")
		}
	}
	if s := q.Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return in, apperr.Validation("start_date", "start_date must be an RFC 3339 timestamp")
		}
		in.StartDate = &t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return in, apperr.Validation("end_date", "end_date must be an RFC 3339 timestamp")
		}
		in.EndDate = &t
	}
	return in, nil
}
