package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditRecord struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	TenantID      uuid.UUID      `json:"organisation_id" db:"organisation_id"`
	ActorID       *uuid.UUID     `json:"actor_id,omitempty" db:"actor_id"`
	Action        string         `json:"action" db:"action"`
	ResourceTable string         `json:"resource_table,omitempty" db:"resource_table"`
	ResourceID    string         `json:"resource_id,omitempty" db:"resource_id"`
	Details       map[string]any `json:"details,omitempty" db:"details"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

type LogLevel string

const (
	LevelInfo     LogLevel = "info"
	LevelWarning  LogLevel = "warning"
	LevelCritical LogLevel = "critical"
)

// SystemLog rows hold platform-level entries that do not belong to a
// tenant's own audit trail: security signals and administrative interventions.
type SystemLog struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	Level     LogLevel       `json:"level" db:"level"`
	Source    string         `json:"source" db:"source"`
	Message   string         `json:"message" db:"message"`
	TenantID  *uuid.UUID     `json:"organisation_id,omitempty" db:"organisation_id"`
	Metadata  map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

type Webhook struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"organisation_id" db:"organisation_id"`
	URL       string    `json:"url" db:"url"`
	Events    []string  `json:"events" db:"events"`
	Secret    string    `json:"-" db:"secret"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type WebhookDelivery struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	WebhookID      uuid.UUID       `json:"webhook_id" db:"webhook_id"`
	Event          string          `json:"event" db:"event"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	ResponseStatus int             `json:"response_status" db:"response_status"`
	Attempts       int             `json:"attempts" db:"attempts"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
