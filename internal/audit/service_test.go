package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

func TestAppendStoresRecord(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil)
	tenantID := uuid.New()
	actor := uuid.New()

	svc.Append(context.Background(), models.AuditRecord{
		TenantID:      tenantID,
		ActorID:       &actor,
		Action:        "capabilities_unlocked",
		ResourceTable: "organisations",
		ResourceID:    tenantID.String(),
		Details:       map[string]any{"unlocked": []string{"voting_engine"}},
	})

	recs := store.Records()
	require.Len(t, recs, 1)
	assert.NotEqual(t, uuid.Nil, recs[0].ID)
	assert.False(t, recs[0].CreatedAt.IsZero())
	assert.Equal(t, "capabilities_unlocked", recs[0].Action)
}

func TestAppendSurvivesCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Append(ctx, models.AuditRecord{TenantID: uuid.New(), Action: "member_removed"})

	assert.Len(t, store.Records(), 1)
}

func TestAppendNeverFailsCaller(t *testing.T) {
	store := NewMemoryStore()
	store.Err = errors.New("connection reset")
	svc := NewService(store, nil)

	assert.NotPanics(t, func() {
		svc.Append(context.Background(), models.AuditRecord{TenantID: uuid.New(), Action: "x"})
		svc.Security(context.Background(), "rate_limit_exceeded", nil)
	})
	assert.Empty(t, store.Records())
}

func TestPlatformAndSecurityGoToSystemLogs(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil)
	tenantID := uuid.New()

	svc.Platform(context.Background(), tenantID, "capabilities_restricted", map[string]any{"reason": "broadcast_spam"})
	svc.Security(context.Background(), "rate_limit_exceeded", map[string]any{"key": "otp:1.2.3.4"})

	logs := store.SystemLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, SourcePlatform, logs[0].Source)
	require.NotNil(t, logs[0].TenantID)
	assert.Equal(t, tenantID, *logs[0].TenantID)
	assert.Equal(t, SourceSecurity, logs[1].Source)
	assert.Nil(t, logs[1].TenantID)
	assert.Empty(t, store.Records())
}

func TestQueryScopesToTenant(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil)
	ctx := context.Background()
	mine, theirs := uuid.New(), uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		svc.Append(ctx, models.AuditRecord{TenantID: mine, Action: "member_added", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	svc.Append(ctx, models.AuditRecord{TenantID: mine, Action: "capabilities_unlocked", CreatedAt: base.Add(time.Hour)})
	svc.Append(ctx, models.AuditRecord{TenantID: theirs, Action: "member_added", CreatedAt: base})

	all, err := svc.Query(ctx, mine, Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "capabilities_unlocked", all[0].Action, "newest first")

	added, err := svc.Query(ctx, mine, Query{Action: "member_added", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, added, 2)

	since := base.Add(30 * time.Minute)
	recent, err := svc.Query(ctx, mine, Query{StartDate: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
