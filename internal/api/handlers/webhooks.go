package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/action"
	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
	"github.com/dhandebaz/sangathan-sub001/internal/webhook"
)

type WebhookHandler struct {
	env *action.Envelope
	svc *webhook.Service
}

func NewWebhookHandler(env *action.Envelope, svc *webhook.Service) *WebhookHandler {
	return &WebhookHandler{env: env, svc: svc}
}

type createdWebhook struct {
	Webhook *models.Webhook `json:"webhook"`
	// Secret is only ever returned here.
	Secret string `json:"secret"`
}

type webhookList struct {
	Webhooks []models.Webhook `json:"webhooks"`
	Count    int              `json:"count"`
}

type webhookRef struct {
	ID string `json:"id" validate:"required,uuid"`
}

type deletedView struct {
	Status string `json:"status"`
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req webhook.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		action.WriteJSON(w, http.StatusCreated, action.Failed[createdWebhook](h.env, err))
		return
	}

	res := action.Execute(r.Context(), h.env, token(r), req,
		func(ctx context.Context, req webhook.CreateRequest, p auth.Principal) (createdWebhook, error) {
			wh, err := h.svc.Create(ctx, p.TenantID, req)
			if err != nil {
				return createdWebhook{}, err
			}
			return createdWebhook{Webhook: wh, Secret: wh.Secret}, nil
		}, models.RoleAdmin)
	action.WriteJSON(w, http.StatusCreated, res)
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	res := action.Execute(r.Context(), h.env, token(r), struct{}{},
		func(ctx context.Context, _ struct{}, p auth.Principal) (webhookList, error) {
			hooks, err := h.svc.List(ctx, p.TenantID)
			if err != nil {
				return webhookList{}, err
			}
			if hooks == nil {
				hooks = []models.Webhook{}
			}
			return webhookList{Webhooks: hooks, Count: len(hooks)}, nil
		}, models.RoleAdmin)
	action.WriteJSON(w, http.StatusOK, res)
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref := webhookRef{ID: chi.URLParam(r, "id")}
	res := action.Execute(r.Context(), h.env, token(r), ref,
		func(ctx context.Context, ref webhookRef, p auth.Principal) (deletedView, error) {
			err := h.svc.Delete(ctx, p.TenantID, uuid.MustParse(ref.ID))
			if errors.Is(err, webhook.ErrNotFound) {
				return deletedView{}, apperr.Validation("id", "webhook not found")
			}
			if err != nil {
				return deletedView{}, err
			}
			return deletedView{Status: "deleted"}, nil
		}, models.RoleAdmin)
	action.WriteJSON(w, http.StatusOK, res)
}
