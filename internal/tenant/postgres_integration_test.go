//go:build integration

package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/database/dbtest"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

func TestPostgresStore(t *testing.T) {
	pool := dbtest.Pool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	var orgID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO organisations (name, slug, capabilities) VALUES ('Lok Manch', 'lok-manch', '{"donations": false}') RETURNING id`,
	).Scan(&orgID))

	identity := uuid.New()
	_, err := pool.Exec(ctx,
		`INSERT INTO memberships (organisation_id, user_id, role, status) VALUES ($1, $2, 'editor', 'active')`,
		orgID, identity)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO memberships (organisation_id, user_id, role, status) VALUES ($1, $2, 'viewer', 'pending')`,
		orgID, uuid.New())
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO events (organisation_id, status) VALUES ($1, 'completed'), ($1, 'scheduled')`, orgID)
	require.NoError(t, err)

	org, err := store.GetByID(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantActive, org.Status)
	assert.Equal(t, models.Capabilities{models.CapDonations: false}, org.Capabilities)

	m, err := store.ActiveMembership(ctx, identity)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, models.RoleEditor, m.Role)

	none, err := store.ActiveMembership(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)

	members, err := store.CountActiveMembers(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 1, members)
	completed, err := store.CountCompletedEvents(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	applied, err := store.MergeCapabilities(ctx, orgID, models.Capabilities{models.CapVotingEngine: true, models.CapDonations: false})
	require.NoError(t, err)
	assert.Equal(t, models.Capabilities{models.CapVotingEngine: true}, applied, "unchanged keys are not reported")
	caps, err := store.Capabilities(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, models.Capabilities{models.CapDonations: false, models.CapVotingEngine: true}, caps)

	require.NoError(t, store.SetStatus(ctx, orgID, models.TenantWarning))
	org, err = store.GetByID(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantWarning, org.Status)

	_, err = store.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.MergeCapabilities(ctx, uuid.New(), models.Capabilities{models.CapVotingEngine: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresConcurrentMergeAppliesOnce(t *testing.T) {
	pool := dbtest.Pool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()

	var orgID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO organisations (name, slug) VALUES ('Jan Manch', 'jan-manch') RETURNING id`,
	).Scan(&orgID))

	const callers = 8
	results := make(chan models.Capabilities, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := store.MergeCapabilities(ctx, orgID, models.Capabilities{models.CapVotingEngine: true, models.CapTaskManagement: true})
			assert.NoError(t, err)
			results <- applied
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for applied := range results {
		if len(applied) > 0 {
			winners++
			assert.Len(t, applied, 2)
		}
	}
	assert.Equal(t, 1, winners)
}
