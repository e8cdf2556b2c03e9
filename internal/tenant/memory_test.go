package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

func TestActiveMembershipPrefersSelectedThenOldest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	identity := uuid.New()
	a := store.AddTenant(models.Tenant{Name: "A", Slug: "a"})
	b := store.AddTenant(models.Tenant{Name: "B", Slug: "b"})
	c := store.AddTenant(models.Tenant{Name: "C", Slug: "c"})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.AddMembership(models.Membership{TenantID: a.ID, IdentityID: identity, Role: models.RoleViewer, Status: models.MembershipInactive, CreatedAt: base})
	store.AddMembership(models.Membership{TenantID: b.ID, IdentityID: identity, Role: models.RoleEditor, Status: models.MembershipActive, CreatedAt: base.Add(time.Hour)})
	store.AddMembership(models.Membership{TenantID: c.ID, IdentityID: identity, Role: models.RoleAdmin, Status: models.MembershipActive, CreatedAt: base.Add(2 * time.Hour)})

	m, err := store.ActiveMembership(ctx, identity)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, b.ID, m.TenantID, "oldest active wins without a selection")

	store.AddMembership(models.Membership{TenantID: a.ID, IdentityID: identity, Role: models.RoleMember, Status: models.MembershipActive, Selected: true, CreatedAt: base.Add(3 * time.Hour)})
	m, err = store.ActiveMembership(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, a.ID, m.TenantID)
	assert.Equal(t, models.RoleMember, m.Role)
}

func TestActiveMembershipNone(t *testing.T) {
	store := NewMemoryStore()
	m, err := store.ActiveMembership(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestCapabilityWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	org := store.AddTenant(models.Tenant{Name: "Org", Slug: "org", Capabilities: models.Capabilities{models.CapDonations: false}})

	applied, err := store.MergeCapabilities(ctx, org.ID, models.Capabilities{models.CapVotingEngine: true, models.CapDonations: false})
	require.NoError(t, err)
	assert.Equal(t, models.Capabilities{models.CapVotingEngine: true}, applied)
	caps, err := store.Capabilities(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Capabilities{models.CapDonations: false, models.CapVotingEngine: true}, caps)

	applied, err = store.MergeCapabilities(ctx, org.ID, models.Capabilities{models.CapVotingEngine: true})
	require.NoError(t, err)
	assert.Empty(t, applied, "nothing left to change")

	require.NoError(t, store.ReplaceCapabilities(ctx, org.ID, models.Capabilities{models.CapBroadcasts: false}))
	caps, err = store.Capabilities(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Capabilities{models.CapBroadcasts: false}, caps)
	assert.Equal(t, 2, store.Writes)

	_, err = store.MergeCapabilities(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
