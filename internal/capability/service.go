// Package capability decides which features a tenant may use. Stored maps are
// always read through models.DefaultCapabilities.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

const (
	ActionUnlocked   = "capabilities_unlocked"
	ActionRestricted = "capabilities_restricted"
)

// Maturity thresholds.
const (
	MembersForGovernance  = 10
	CompletedForAnalytics = 1
)

type Repository interface {
	Capabilities(ctx context.Context, id uuid.UUID) (models.Capabilities, error)
	MergeCapabilities(ctx context.Context, id uuid.UUID, changed models.Capabilities) (models.Capabilities, error)
	ReplaceCapabilities(ctx context.Context, id uuid.UUID, caps models.Capabilities) error
	CountActiveMembers(ctx context.Context, id uuid.UUID) (int, error)
	CountCompletedEvents(ctx context.Context, id uuid.UUID) (int, error)
}

type Auditor interface {
	Append(ctx context.Context, rec models.AuditRecord)
	Platform(ctx context.Context, tenantID uuid.UUID, action string, meta map[string]any)
}

type Service struct {
	repo   Repository
	audit  Auditor
	logger *slog.Logger
}

func NewService(repo Repository, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// Get returns the effective capability map.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID) (models.Capabilities, error) {
	stored, err := s.repo.Capabilities(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("get capabilities: %w", err)
	}
	return models.DefaultCapabilities().Merge(stored), nil
}

func (s *Service) Enabled(ctx context.Context, tenantID uuid.UUID, c models.Capability) (bool, error) {
	caps, err := s.Get(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return caps[c], nil
}

// Unlock grants every capability the tenant has grown into and returns the
// keys it switched on. Nothing is written when nothing changes, and unlock
// never switches a capability off. Only the caller whose merge changed the
// row audits it, so concurrent unlocks record one capabilities_unlocked.
func (s *Service) Unlock(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID) ([]models.Capability, error) {
	current, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.CountActiveMembers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("unlock capabilities: %w", err)
	}
	completed, err := s.repo.CountCompletedEvents(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("unlock capabilities: %w", err)
	}

	var earned []models.Capability
	if members >= MembersForGovernance {
		earned = append(earned, models.CapVotingEngine, models.CapTaskManagement)
	}
	if completed >= CompletedForAnalytics {
		earned = append(earned, models.CapAdvancedAnalytics)
	}

	changed := models.Capabilities{}
	for _, c := range earned {
		if !current[c] {
			changed[c] = true
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	applied, err := s.repo.MergeCapabilities(ctx, tenantID, changed)
	if err != nil {
		return nil, fmt.Errorf("unlock capabilities: %w", err)
	}
	var unlocked []models.Capability
	for c, on := range applied {
		if on {
			unlocked = append(unlocked, c)
		}
	}
	if len(unlocked) == 0 {
		return nil, nil
	}

	sort.Slice(unlocked, func(i, j int) bool { return unlocked[i] < unlocked[j] })
	s.audit.Append(ctx, models.AuditRecord{
		TenantID:      tenantID,
		ActorID:       actor,
		Action:        ActionUnlocked,
		ResourceTable: "organisations",
		ResourceID:    tenantID.String(),
		Details: map[string]any{
			"unlocked":         names(unlocked),
			"active_members":   members,
			"completed_events": completed,
		},
	})
	s.logger.Info("capabilities unlocked", "tenant_id", tenantID, "capabilities", names(unlocked))
	return unlocked, nil
}

// hardened are switched off by Restrict.
var hardened = []models.Capability{
	models.CapFederationMode,
	models.CapTransparencyPortal,
	models.CapBroadcasts,
}

// Restrict overwrites the stored map with the effective map minus the
// hardened capabilities. There is no automatic way back: lifting a
// restriction is an administrative decision made outside the core.
func (s *Service) Restrict(ctx context.Context, tenantID uuid.UUID, reason string) error {
	caps, err := s.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, c := range hardened {
		caps[c] = false
	}
	if err := s.repo.ReplaceCapabilities(ctx, tenantID, caps); err != nil {
		return fmt.Errorf("restrict capabilities: %w", err)
	}

	s.audit.Platform(ctx, tenantID, ActionRestricted, map[string]any{
		"reason":   reason,
		"disabled": names(hardened),
	})
	s.logger.Warn("capabilities restricted", "tenant_id", tenantID, "reason", reason)
	return nil
}

func names(caps []models.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
