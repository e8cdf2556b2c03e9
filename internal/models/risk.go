package models

import (
	"time"

	"github.com/google/uuid"
)

type RiskSeverity string

const (
	SeverityLow    RiskSeverity = "low"
	SeverityMedium RiskSeverity = "medium"
	SeverityHigh   RiskSeverity = "high"
)

type RiskEntity string

const (
	EntityPhone  RiskEntity = "phone"
	EntityIP     RiskEntity = "ip"
	EntityTenant RiskEntity = "organisation"
)

type RiskType string

const (
	RiskOTPFlood      RiskType = "otp_flood"
	RiskBroadcastSpam RiskType = "broadcast_spam"
	RiskFormSpam      RiskType = "form_spam"
)

type RiskEvent struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	EntityType RiskEntity     `json:"entity_type" db:"entity_type"`
	EntityID   string         `json:"entity_id" db:"entity_id"`
	RiskType   RiskType       `json:"risk_type" db:"risk_type"`
	Severity   RiskSeverity   `json:"severity" db:"severity"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
