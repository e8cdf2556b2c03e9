//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/database/dbtest"
)

func TestPostgresStoreFixedWindow(t *testing.T) {
	pool := dbtest.Pool(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	l := New(NewPostgresStore(pool), nil, nil).WithClock(func() time.Time { return now })
	ctx := context.Background()
	start := now

	for i := 0; i < 3; i++ {
		require.True(t, l.Check(ctx, "login:alice", 3, 60*time.Second))
	}
	now = start.Add(59 * time.Second)
	assert.False(t, l.Check(ctx, "login:alice", 3, 60*time.Second))

	now = start.Add(61 * time.Second)
	assert.True(t, l.Check(ctx, "login:alice", 3, 60*time.Second))

	var points int
	require.NoError(t, pool.QueryRow(ctx, `SELECT points FROM rate_limits WHERE key = 'login:alice'`).Scan(&points))
	assert.Equal(t, 1, points)
}

func TestPostgresStoreConcurrentTakes(t *testing.T) {
	pool := dbtest.Pool(t)
	store := NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := store.Take(ctx, "forms:198.51.100.4", 10, time.Hour, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}
