package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dhandebaz/sangathan-sub001/internal/action"
	"github.com/dhandebaz/sangathan-sub001/internal/api/middleware"
	"github.com/dhandebaz/sangathan-sub001/internal/ratelimit"
	"github.com/dhandebaz/sangathan-sub001/internal/risk"
)

const (
	otpPerPhone = 3
	otpWindow   = time.Minute
)

// PublicHandler gates unauthenticated endpoints. It decides whether a
// request may proceed; sending the OTP or storing the submission belongs to
// the modules that own them.
type PublicHandler struct {
	env     *action.Envelope
	limiter *ratelimit.Limiter
	risk    *risk.Engine
}

func NewPublicHandler(env *action.Envelope, limiter *ratelimit.Limiter, engine *risk.Engine) *PublicHandler {
	return &PublicHandler{env: env, limiter: limiter, risk: engine}
}

type OTPRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}

type FormSubmission struct {
	FormID string            `json:"form_id" validate:"required,uuid"`
	Fields map[string]string `json:"fields" validate:"required,min=1,max=100"`
}

type gateView struct {
	Allowed bool `json:"allowed"`
}

func (h *PublicHandler) OTP(w http.ResponseWriter, r *http.Request) {
	var req OTPRequest
	if err := decodeJSON(r, &req); err != nil {
		action.WriteJSON(w, http.StatusOK, action.Failed[gateView](h.env, err))
		return
	}
	if err := h.env.Validate(req); err != nil {
		action.WriteJSON(w, http.StatusOK, action.Failed[gateView](h.env, err))
		return
	}

	ctx := r.Context()
	if !h.limiter.Check(ctx, "otp:"+req.Phone, otpPerPhone, otpWindow) {
		action.WriteJSON(w, http.StatusOK, action.Failed[gateView](h.env, errTooManyRequests))
		return
	}
	if err := h.risk.CheckOTP(ctx, req.Phone, middleware.ClientIP(r)).Err(); err != nil {
		action.WriteJSON(w, http.StatusOK, action.Failed[gateView](h.env, err))
		return
	}
	action.WriteJSON(w, http.StatusOK, action.Result[gateView]{Success: true, Data: gateView{Allowed: true}})
}

func (h *PublicHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	var req FormSubmission
	if err := decodeJSON(r, &req); err != nil {
		action.WriteJSON(w, http.StatusAccepted, action.Failed[gateView](h.env, err))
		return
	}
	req.FormID = chi.URLParam(r, "formID")
	if err := h.env.Validate(req); err != nil {
		action.WriteJSON(w, http.StatusAccepted, action.Failed[gateView](h.env, err))
		return
	}

	if err := h.risk.CheckFormSubmission(r.Context(), middleware.ClientIP(r)).Err(); err != nil {
		action.WriteJSON(w, http.StatusAccepted, action.Failed[gateView](h.env, err))
		return
	}
	action.WriteJSON(w, http.StatusAccepted, action.Result[gateView]{Success: true, Data: gateView{Allowed: true}})
}
