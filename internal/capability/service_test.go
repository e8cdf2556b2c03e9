package capability

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/audit"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
	"github.com/dhandebaz/sangathan-sub001/internal/tenant"
)

type fixture struct {
	tenants *tenant.MemoryStore
	logs    *audit.MemoryStore
	svc     *Service
	org     *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tenants := tenant.NewMemoryStore()
	logs := audit.NewMemoryStore()
	return &fixture{
		tenants: tenants,
		logs:    logs,
		svc:     NewService(tenants, audit.NewService(logs, nil), nil),
		org:     tenants.AddTenant(models.Tenant{Name: "Lok Manch", Slug: "lok-manch"}),
	}
}

func (f *fixture) addMembers(n int) {
	for i := 0; i < n; i++ {
		f.tenants.AddMembership(models.Membership{
			TenantID:   f.org.ID,
			IdentityID: uuid.New(),
			Role:       models.RoleMember,
			Status:     models.MembershipActive,
		})
	}
}

func TestGetMergesDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tenants.ReplaceCapabilities(ctx, f.org.ID, models.Capabilities{models.CapDonations: false}))

	caps, err := f.svc.Get(ctx, f.org.ID)
	require.NoError(t, err)
	assert.False(t, caps[models.CapDonations], "stored value wins")
	assert.True(t, caps[models.CapBroadcasts], "missing key resolves from defaults")
	assert.False(t, caps[models.CapVotingEngine])
	assert.Len(t, caps, len(models.DefaultCapabilities()))
}

func TestUnlockAtTenActiveMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addMembers(9)
	f.tenants.AddMembership(models.Membership{TenantID: f.org.ID, IdentityID: uuid.New(), Role: models.RoleMember, Status: models.MembershipPending})

	unlocked, err := f.svc.Unlock(ctx, f.org.ID, &actor)
	require.NoError(t, err)
	assert.Empty(t, unlocked)
	on, err := f.svc.Enabled(ctx, f.org.ID, models.CapVotingEngine)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, 0, f.tenants.Writes)
	assert.Empty(t, f.logs.Records())

	f.addMembers(1)
	unlocked, err = f.svc.Unlock(ctx, f.org.ID, &actor)
	require.NoError(t, err)
	assert.Equal(t, []models.Capability{models.CapTaskManagement, models.CapVotingEngine}, unlocked)
	on, err = f.svc.Enabled(ctx, f.org.ID, models.CapVotingEngine)
	require.NoError(t, err)
	assert.True(t, on)

	unlocked, err = f.svc.Unlock(ctx, f.org.ID, &actor)
	require.NoError(t, err)
	assert.Empty(t, unlocked, "second call is a no-op")

	assert.Equal(t, 1, f.tenants.Writes)
	recs := f.logs.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ActionUnlocked, recs[0].Action)
	assert.Equal(t, &actor, recs[0].ActorID)
	assert.Equal(t, 10, recs[0].Details["active_members"])
}

func TestUnlockAnalyticsAfterCompletedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tenants.AddCompletedEvent(f.org.ID)

	unlocked, err := f.svc.Unlock(ctx, f.org.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []models.Capability{models.CapAdvancedAnalytics}, unlocked)
}

func TestUnlockNeverReenablesWhatIsOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.tenants.MergeCapabilities(ctx, f.org.ID, models.Capabilities{models.CapVotingEngine: true})
	require.NoError(t, err)
	f.addMembers(10)

	unlocked, err := f.svc.Unlock(ctx, f.org.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []models.Capability{models.CapTaskManagement}, unlocked)
}

// gatedRepo holds every caller inside CountActiveMembers until all of them
// have read the capability map, so their writes race.
type gatedRepo struct {
	*tenant.MemoryStore
	arrived sync.WaitGroup
}

func (r *gatedRepo) CountActiveMembers(ctx context.Context, id uuid.UUID) (int, error) {
	r.arrived.Done()
	r.arrived.Wait()
	return r.MemoryStore.CountActiveMembers(ctx, id)
}

func TestConcurrentUnlockAuditsOnce(t *testing.T) {
	f := newFixture(t)
	f.addMembers(10)

	const callers = 4
	repo := &gatedRepo{MemoryStore: f.tenants}
	repo.arrived.Add(callers)
	svc := NewService(repo, audit.NewService(f.logs, nil), nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlocked, err := svc.Unlock(context.Background(), f.org.ID, nil)
			assert.NoError(t, err)
			if len(unlocked) > 0 {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, f.tenants.Writes)
	recs := f.logs.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ActionUnlocked, recs[0].Action)
	assert.Equal(t, []string{"task_management", "voting_engine"}, recs[0].Details["unlocked"])
}

func TestRestrict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMembers(10)
	_, err := f.svc.Unlock(ctx, f.org.ID, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Restrict(ctx, f.org.ID, "broadcast_spam"))

	caps, err := f.svc.Get(ctx, f.org.ID)
	require.NoError(t, err)
	assert.False(t, caps[models.CapBroadcasts])
	assert.False(t, caps[models.CapFederationMode])
	assert.False(t, caps[models.CapTransparencyPortal])
	assert.True(t, caps[models.CapVotingEngine], "earned capabilities survive")
	assert.True(t, caps[models.CapDonations])

	sys := f.logs.SystemLogs()
	require.Len(t, sys, 1)
	assert.Equal(t, audit.SourcePlatform, sys[0].Source)
	assert.Equal(t, ActionRestricted, sys[0].Message)
	assert.Len(t, f.logs.Records(), 1, "restriction is not a tenant audit record")
}

func TestUnknownTenant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, tenant.ErrNotFound)
}
