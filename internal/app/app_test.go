package app

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/auth"
	"github.com/dhandebaz/sangathan-sub001/internal/config"
	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/ratelimit"
)

// unusedDB satisfies DBTX for wiring checks that never touch the database.
type unusedDB struct{ database.DBTX }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Auth.JWTSecret = "app-test-secret-app-test-secret"
	return cfg
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(testConfig(t), Options{})
	assert.Error(t, err)
}

func TestNewWiresEverything(t *testing.T) {
	s, err := New(testConfig(t), Options{DB: unusedDB{}})
	require.NoError(t, err)

	assert.NotNil(t, s.Envelope)
	assert.NotNil(t, s.Capabilities)
	assert.NotNil(t, s.Limiter)
	assert.NotNil(t, s.Risk)
	assert.NotNil(t, s.Queue)
	assert.NotNil(t, s.Processor)
	assert.NotNil(t, s.Webhooks)
	assert.Contains(t, s.Breakers.Snapshot(), BreakerEmail)
}

func TestIdentityProviderFollowsAuthMode(t *testing.T) {
	s := &Services{}
	p, err := s.identityProvider(config.AuthConfig{Mode: "jwt", JWTSecret: "x"})
	require.NoError(t, err)
	assert.IsType(t, &auth.JWTProvider{}, p)

	cfg := testConfig(t)
	cfg.Auth.Mode = "remote"
	cfg.Auth.SupabaseURL = "https://project.supabase.co"
	svc, err := New(cfg, Options{DB: unusedDB{}})
	require.NoError(t, err)
	assert.Contains(t, svc.Breakers.Snapshot(), BreakerSupabaseAuth)

	cfg.Auth.Mode = "magic"
	_, err = New(cfg, Options{DB: unusedDB{}})
	assert.Error(t, err)
}

func TestRateLimitBackends(t *testing.T) {
	st, err := rateLimitStore(config.RateLimitConfig{Backend: "memory"}, Options{})
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.MemoryStore{}, st)

	_, err = rateLimitStore(config.RateLimitConfig{Backend: "redis"}, Options{})
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	st, err = rateLimitStore(config.RateLimitConfig{Backend: "redis"}, Options{Redis: rdb})
	require.NoError(t, err)
	assert.IsType(t, &ratelimit.RedisStore{}, st)

	_, err = rateLimitStore(config.RateLimitConfig{Backend: "etcd"}, Options{})
	assert.Error(t, err)
}
