package models

import (
	"time"

	"github.com/google/uuid"
)

type TenantStatus string

const (
	TenantActive  TenantStatus = "active"
	TenantWarning TenantStatus = "warning"
)

type Tenant struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Slug         string       `json:"slug" db:"slug"`
	Status       TenantStatus `json:"status" db:"status"`
	Suspended    bool         `json:"is_suspended" db:"is_suspended"`
	LegalHold    bool         `json:"legal_hold" db:"legal_hold"`
	Capabilities Capabilities `json:"capabilities" db:"capabilities"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleMember Role = "member"
)

// Roles is the closed set of membership roles.
var Roles = []Role{RoleAdmin, RoleEditor, RoleViewer, RoleMember}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipPending  MembershipStatus = "pending"
	MembershipInactive MembershipStatus = "inactive"
)

type Membership struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	TenantID   uuid.UUID        `json:"organisation_id" db:"organisation_id"`
	IdentityID uuid.UUID        `json:"user_id" db:"user_id"`
	Role       Role             `json:"role" db:"role"`
	Status     MembershipStatus `json:"status" db:"status"`
	// Selected marks the membership an identity currently works in.
	Selected  bool      `json:"is_selected" db:"is_selected"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Identity is what the auth provider vouches for.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone,omitempty"`
}
