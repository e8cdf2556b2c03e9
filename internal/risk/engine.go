// Package risk flags abusive usage with threshold heuristics over short
// trailing windows.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// Attempt kinds recorded in risk_attempts.
const (
	KindOTPPhone  = "otp_phone"
	KindOTPIP     = "otp_ip"
	KindBroadcast = "broadcast"
	KindForm      = "form_submission"
)

const (
	hour = time.Hour
	day  = 24 * time.Hour
)

var ErrBlocked = apperr.New(apperr.KindUnavailable, "too many requests, please try again later")

type Thresholds struct {
	OTPPerPhone       int
	OTPPerIP          int
	BroadcastsPerDay  int
	FormsPerIPPerHour int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		OTPPerPhone:       5,
		OTPPerIP:          20,
		BroadcastsPerDay:  3,
		FormsPerIPPerHour: 10,
	}
}

type Store interface {
	RecordAttempt(ctx context.Context, kind, subject string, at time.Time) error
	CountAttempts(ctx context.Context, kind, subject string, since time.Time) (int, error)
	InsertEvent(ctx context.Context, ev models.RiskEvent) error
}

// TenantFlagger marks a tenant for review.
type TenantFlagger interface {
	SetStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error
}

// Restrictor hardens a tenant's capabilities.
type Restrictor interface {
	Restrict(ctx context.Context, tenantID uuid.UUID, reason string) error
}

type Verdict struct {
	Allowed bool
	// Event is set when the check tripped a threshold.
	Event *models.RiskEvent
}

type Engine struct {
	store      Store
	flagger    TenantFlagger
	restrictor Restrictor
	limits     Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(store Store, flagger TenantFlagger, restrictor Restrictor, limits Thresholds, logger *slog.Logger) *Engine {
	def := DefaultThresholds()
	if limits.OTPPerPhone <= 0 {
		limits.OTPPerPhone = def.OTPPerPhone
	}
	if limits.OTPPerIP <= 0 {
		limits.OTPPerIP = def.OTPPerIP
	}
	if limits.BroadcastsPerDay <= 0 {
		limits.BroadcastsPerDay = def.BroadcastsPerDay
	}
	if limits.FormsPerIPPerHour <= 0 {
		limits.FormsPerIPPerHour = def.FormsPerIPPerHour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      store,
		flagger:    flagger,
		restrictor: restrictor,
		limits:     limits,
		logger:     logger,
		now:        time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CheckOTP counts OTP requests per phone and per source IP. Either one
// tripping blocks the request.
func (e *Engine) CheckOTP(ctx context.Context, phone, ip string) Verdict {
	v := e.check(ctx, rule{
		kind:      KindOTPPhone,
		subject:   phone,
		window:    hour,
		threshold: e.limits.OTPPerPhone,
		entity:    models.EntityPhone,
		riskType:  models.RiskOTPFlood,
		severity:  models.SeverityMedium,
	})
	if ip == "" {
		return v
	}
	byIP := e.check(ctx, rule{
		kind:      KindOTPIP,
		subject:   ip,
		window:    hour,
		threshold: e.limits.OTPPerIP,
		entity:    models.EntityIP,
		riskType:  models.RiskOTPFlood,
		severity:  models.SeverityHigh,
	})
	if !byIP.Allowed {
		return byIP
	}
	return v
}

// CheckBroadcast counts announcement sends by a tenant over the last day. A
// tenant that trips it is flagged and restricted.
func (e *Engine) CheckBroadcast(ctx context.Context, tenantID uuid.UUID) Verdict {
	return e.check(ctx, rule{
		kind:      KindBroadcast,
		subject:   tenantID.String(),
		window:    day,
		threshold: e.limits.BroadcastsPerDay,
		entity:    models.EntityTenant,
		riskType:  models.RiskBroadcastSpam,
		severity:  models.SeverityHigh,
		tenantID:  tenantID,
	})
}

func (e *Engine) CheckFormSubmission(ctx context.Context, ip string) Verdict {
	return e.check(ctx, rule{
		kind:      KindForm,
		subject:   ip,
		window:    hour,
		threshold: e.limits.FormsPerIPPerHour,
		entity:    models.EntityIP,
		riskType:  models.RiskFormSpam,
		severity:  models.SeverityLow,
	})
}

type rule struct {
	kind      string
	subject   string
	window    time.Duration
	threshold int
	entity    models.RiskEntity
	riskType  models.RiskType
	severity  models.RiskSeverity
	tenantID  uuid.UUID
}

// check records the attempt, then counts it with the others in the window.
// Store failures allow the request.
func (e *Engine) check(ctx context.Context, r rule) Verdict {
	now := e.now().UTC()

	if err := e.store.RecordAttempt(ctx, r.kind, r.subject, now); err != nil {
		e.logger.Warn("risk attempt not recorded, allowing", "kind", r.kind, "error", err)
		return Verdict{Allowed: true}
	}
	count, err := e.store.CountAttempts(ctx, r.kind, r.subject, now.Add(-r.window))
	if err != nil {
		e.logger.Warn("risk count failed, allowing", "kind", r.kind, "error", err)
		return Verdict{Allowed: true}
	}
	if count <= r.threshold {
		return Verdict{Allowed: true}
	}

	severity := r.severity
	if count >= 2*r.threshold {
		severity = escalate(severity)
	}

	ev := models.RiskEvent{
		ID:         uuid.New(),
		EntityType: r.entity,
		EntityID:   r.subject,
		RiskType:   r.riskType,
		Severity:   severity,
		Metadata: map[string]any{
			"count":     count,
			"threshold": r.threshold,
			"window":    r.window.String(),
		},
		CreatedAt: now,
	}
	e.emit(ctx, ev)

	if severity == models.SeverityHigh && r.entity == models.EntityTenant {
		e.escalateTenant(ctx, r.tenantID, ev)
	}
	return Verdict{Allowed: false, Event: &ev}
}

func (e *Engine) emit(ctx context.Context, ev models.RiskEvent) {
	metrics.RiskEvents.WithLabelValues(string(ev.RiskType), string(ev.Severity)).Inc()
	if err := e.store.InsertEvent(ctx, ev); err != nil {
		e.logger.Error("risk event not stored",
			"error", err,
			"risk_type", ev.RiskType,
			"entity_type", ev.EntityType,
			"entity_id", ev.EntityID,
			"severity", ev.Severity,
		)
		return
	}
	e.logger.Warn("risk threshold exceeded",
		"risk_type", ev.RiskType,
		"entity_type", ev.EntityType,
		"entity_id", ev.EntityID,
		"severity", ev.Severity,
	)
}

// escalateTenant flags the tenant for review and restricts it. Neither is
// undone here.
func (e *Engine) escalateTenant(ctx context.Context, tenantID uuid.UUID, ev models.RiskEvent) {
	if e.flagger != nil {
		if err := e.flagger.SetStatus(ctx, tenantID, models.TenantWarning); err != nil {
			e.logger.Error("flag tenant failed", "tenant_id", tenantID, "error", err)
		}
	}
	if e.restrictor != nil {
		if err := e.restrictor.Restrict(ctx, tenantID, string(ev.RiskType)); err != nil {
			e.logger.Error("restrict tenant failed", "tenant_id", tenantID, "error", err)
		}
	}
}

func escalate(s models.RiskSeverity) models.RiskSeverity {
	switch s {
	case models.SeverityLow:
		return models.SeverityMedium
	case models.SeverityMedium:
		return models.SeverityHigh
	default:
		return models.SeverityHigh
	}
}

// Err is nil for an allowed verdict and wraps ErrBlocked otherwise.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return fmt.Errorf("%s: %w", v.Event.RiskType, ErrBlocked)
}
