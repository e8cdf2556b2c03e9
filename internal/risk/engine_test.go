package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type fakeFlagger struct {
	statuses map[uuid.UUID]models.TenantStatus
}

func (f *fakeFlagger) SetStatus(_ context.Context, id uuid.UUID, s models.TenantStatus) error {
	f.statuses[id] = s
	return nil
}

type fakeRestrictor struct {
	reasons []string
}

func (f *fakeRestrictor) Restrict(_ context.Context, _ uuid.UUID, reason string) error {
	f.reasons = append(f.reasons, reason)
	return nil
}

type failingStore struct{ MemoryStore }

func (*failingStore) RecordAttempt(context.Context, string, string, time.Time) error {
	return errors.New("db down")
}

type env struct {
	store      *MemoryStore
	flagger    *fakeFlagger
	restrictor *fakeRestrictor
	engine     *Engine
	now        time.Time
}

func newEnv() *env {
	e := &env{
		store:      NewMemoryStore(),
		flagger:    &fakeFlagger{statuses: map[uuid.UUID]models.TenantStatus{}},
		restrictor: &fakeRestrictor{},
		now:        time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	e.engine = NewEngine(e.store, e.flagger, e.restrictor, Thresholds{}, nil).
		WithClock(func() time.Time { return e.now })
	return e
}

func TestOTPPerPhone(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, e.engine.CheckOTP(ctx, "+919800000001", "").Allowed)
		e.now = e.now.Add(time.Minute)
	}
	v := e.engine.CheckOTP(ctx, "+919800000001", "")
	assert.False(t, v.Allowed)
	require.NotNil(t, v.Event)
	assert.Equal(t, models.RiskOTPFlood, v.Event.RiskType)
	assert.Equal(t, models.EntityPhone, v.Event.EntityType)
	assert.Equal(t, models.SeverityMedium, v.Event.Severity)
	assert.True(t, errors.Is(v.Err(), apperr.ErrUnavailable))

	assert.True(t, e.engine.CheckOTP(ctx, "+919800000002", "").Allowed, "other phones unaffected")

	e.now = e.now.Add(time.Hour)
	assert.True(t, e.engine.CheckOTP(ctx, "+919800000001", "").Allowed, "window slides")
}

func TestOTPPerIP(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.True(t, e.engine.CheckOTP(ctx, uuid.NewString(), "10.0.0.7").Allowed)
	}
	v := e.engine.CheckOTP(ctx, uuid.NewString(), "10.0.0.7")
	assert.False(t, v.Allowed)
	assert.Equal(t, models.EntityIP, v.Event.EntityType)
	assert.Equal(t, models.SeverityHigh, v.Event.Severity)
	assert.Empty(t, e.restrictor.reasons, "ip events never touch tenants")
}

func TestBroadcastSpamFlagsAndRestrictsTenant(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	org := uuid.New()

	for i := 0; i < 3; i++ {
		require.True(t, e.engine.CheckBroadcast(ctx, org).Allowed)
	}
	assert.Empty(t, e.flagger.statuses)

	v := e.engine.CheckBroadcast(ctx, org)
	assert.False(t, v.Allowed)
	assert.Equal(t, models.SeverityHigh, v.Event.Severity)
	assert.Equal(t, models.TenantWarning, e.flagger.statuses[org])
	assert.Equal(t, []string{string(models.RiskBroadcastSpam)}, e.restrictor.reasons)
	assert.Len(t, e.store.Events(), 1)
}

func TestFormSpamEscalatesAtDoubleThreshold(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	var last Verdict
	for i := 0; i < 11; i++ {
		last = e.engine.CheckFormSubmission(ctx, "203.0.113.9")
	}
	require.False(t, last.Allowed)
	assert.Equal(t, models.SeverityLow, last.Event.Severity)

	for i := 0; i < 9; i++ {
		last = e.engine.CheckFormSubmission(ctx, "203.0.113.9")
	}
	assert.Equal(t, models.SeverityMedium, last.Event.Severity)
}

func TestStoreFailureAllows(t *testing.T) {
	engine := NewEngine(&failingStore{}, nil, nil, Thresholds{FormsPerIPPerHour: 1}, nil)
	for i := 0; i < 5; i++ {
		assert.True(t, engine.CheckFormSubmission(context.Background(), "203.0.113.9").Allowed)
	}
}
