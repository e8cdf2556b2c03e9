package handlers

import (
	"context"
	"net/http"

	"github.com/dhandebaz/sangathan-sub001/internal/action"
	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/capability"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type CapabilityHandler struct {
	env *action.Envelope
	svc *capability.Service
}

func NewCapabilityHandler(env *action.Envelope, svc *capability.Service) *CapabilityHandler {
	return &CapabilityHandler{env: env, svc: svc}
}

type capabilitiesView struct {
	Capabilities models.Capabilities `json:"capabilities"`
}

type unlockView struct {
	Unlocked []models.Capability `json:"unlocked"`
}

func (h *CapabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	res := action.Execute(r.Context(), h.env, token(r), struct{}{},
		func(ctx context.Context, _ struct{}, p auth.Principal) (capabilitiesView, error) {
			caps, err := h.svc.Get(ctx, p.TenantID)
			return capabilitiesView{Capabilities: caps}, err
		})
	action.WriteJSON(w, http.StatusOK, res)
}

func (h *CapabilityHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	res := action.Execute(r.Context(), h.env, token(r), struct{}{},
		func(ctx context.Context, _ struct{}, p auth.Principal) (unlockView, error) {
			unlocked, err := h.svc.Unlock(ctx, p.TenantID, p.ActorID())
			if unlocked == nil {
				unlocked = []models.Capability{}
			}
			return unlockView{Unlocked: unlocked}, err
		}, models.RoleAdmin)
	action.WriteJSON(w, http.StatusOK, res)
}
