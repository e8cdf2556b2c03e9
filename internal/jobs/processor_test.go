package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhandebaz/sangathan-sub001/internal/breaker"
	"github.com/dhandebaz/sangathan-sub001/internal/email"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSender fails while failures > 0.
type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []email.Message
}

func (s *fakeSender) Send(_ context.Context, msg email.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return "", errors.New("smtp relay unreachable")
	}
	s.sent = append(s.sent, msg)
	return "msg_" + uuid.NewString(), nil
}

type harness struct {
	clock     *clock
	store     *MemoryStore
	queue     *Queue
	registry  *Registry
	processor *Processor
}

func newHarness(cfg Config) *harness {
	c := newClock()
	store := NewMemoryStore()
	reg := NewRegistry()
	return &harness{
		clock:     c,
		store:     store,
		queue:     NewQueue(store, nil, WithQueueClock(c.Now)),
		registry:  reg,
		processor: NewProcessor(store, reg, cfg, nil).WithClock(c.Now),
	}
}

func (h *harness) enqueue(t *testing.T, jobType models.JobType, payload any) uuid.UUID {
	t.Helper()
	id, ok := h.queue.EnqueueID(context.Background(), jobType, payload)
	require.True(t, ok)
	h.clock.Advance(time.Millisecond)
	return id
}

func (h *harness) job(t *testing.T, id uuid.UUID) *models.Job {
	t.Helper()
	j, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return j
}

func TestEnqueue(t *testing.T) {
	h := newHarness(Config{})
	id := h.enqueue(t, models.JobSendEmail, email.Message{To: []string{"a@b.com"}})

	j := h.job(t, id)
	assert.Equal(t, models.JobPending, j.Status)
	assert.Equal(t, 0, j.Attempts)
	assert.Equal(t, 3, j.MaxAttempts)

	assert.False(t, h.queue.Enqueue(context.Background(), models.JobType("export_csv"), nil))
	assert.False(t, h.queue.Enqueue(context.Background(), models.JobSendEmail, make(chan int)))
}

func TestClaimNextIsOldestFirst(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()
	first := h.enqueue(t, models.JobSendEmail, map[string]any{"n": 1})
	second := h.enqueue(t, models.JobSendEmail, map[string]any{"n": 2})

	j, err := h.store.ClaimNext(ctx, h.clock.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, first, j.ID)
	assert.Equal(t, models.JobInProgress, j.Status)

	j, err = h.store.ClaimNext(ctx, h.clock.Now(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, second, j.ID)

	j, err = h.store.ClaimNext(ctx, h.clock.Now(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestConcurrentClaimsNeverOverlap(t *testing.T) {
	h := newHarness(Config{})
	const n = 200
	for i := 0; i < n; i++ {
		h.enqueue(t, models.JobSendEmail, map[string]int{"i": i})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
		empty   int32
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, err := h.store.ClaimNext(context.Background(), h.clock.Now(), time.Minute)
				if err != nil {
					t.Error(err)
					return
				}
				if j == nil {
					atomic.AddInt32(&empty, 1)
					return
				}
				mu.Lock()
				claimed[j.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, n)
	for id, c := range claimed {
		assert.Equal(t, 1, c, "job %s claimed %d times", id, c)
	}
	assert.Equal(t, int32(16), empty)
}

func TestAlwaysFailingJobLifecycle(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()
	h.registry.Register(models.JobSendEmail, func(context.Context, json.RawMessage) error {
		return errors.New("transport down")
	})
	id := h.enqueue(t, models.JobSendEmail, map[string]any{})

	var trail []models.JobStatus
	for i := 0; i < 3; i++ {
		out, err := h.processor.ProcessNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, out.Job)
		assert.Equal(t, models.JobInProgress, out.Job.Status)
		trail = append(trail, out.Job.Status, out.Status)
	}
	assert.Equal(t, []models.JobStatus{
		models.JobInProgress, models.JobPending,
		models.JobInProgress, models.JobPending,
		models.JobInProgress, models.JobFailed,
	}, trail)

	j := h.job(t, id)
	assert.Equal(t, models.JobFailed, j.Status)
	assert.Equal(t, 3, j.Attempts)
	require.NotNil(t, j.LastError)
	assert.Equal(t, "transport down", *j.LastError)

	out, err := h.processor.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, out.Job, "a failed job is never claimed again")
	assert.Equal(t, models.JobFailed, h.job(t, id).Status)
}

func TestSendEmailEndToEnd(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()
	sender := &fakeSender{failures: 1}
	h.registry.Register(models.JobSendEmail, SendEmail(sender, breaker.New("email", breaker.Config{}), nil))

	id := h.enqueue(t, models.JobSendEmail, json.RawMessage(`{"to":"a@b.com","subject":"Hi","html":"<p>Hi</p>"}`))

	claimed, err := h.store.ClaimNext(ctx, h.clock.Now(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, id, claimed.ID)
	assert.Equal(t, models.JobInProgress, h.job(t, id).Status)

	second, err := h.store.ClaimNext(ctx, h.clock.Now(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second, "the only job is already claimed")

	handler, _ := h.registry.lookup(models.JobSendEmail)
	runErr := handler(ctx, claimed.Payload)
	require.Error(t, runErr)
	status, err := h.store.Fail(ctx, id, runErr.Error(), h.clock.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, status)
	j := h.job(t, id)
	assert.Equal(t, 1, j.Attempts)
	assert.Equal(t, models.JobPending, j.Status)

	out, err := h.processor.ProcessNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Job)
	assert.Equal(t, id, out.Job.ID)
	assert.Equal(t, models.JobCompleted, out.Status)
	assert.Equal(t, models.JobCompleted, h.job(t, id).Status)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"a@b.com"}, sender.sent[0].To)
	assert.Equal(t, "Hi", sender.sent[0].Subject)
}

func TestUnknownTypeFailsFast(t *testing.T) {
	h := newHarness(Config{})
	ctx := context.Background()
	id := h.enqueue(t, models.JobDeliverWebhook, map[string]any{})

	out, err := h.processor.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, out.Status)

	j := h.job(t, id)
	assert.Equal(t, models.JobFailed, j.Status)
	assert.Equal(t, 1, j.Attempts)
	assert.Equal(t, unknownTypeMessage, *j.LastError)
}

func TestPanickingHandlerIsAFailedAttempt(t *testing.T) {
	h := newHarness(Config{})
	h.registry.Register(models.JobSendEmail, func(context.Context, json.RawMessage) error {
		panic("nil pointer")
	})
	id := h.enqueue(t, models.JobSendEmail, map[string]any{})

	out, err := h.processor.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, out.Status)
	assert.Equal(t, 1, h.job(t, id).Attempts)
}

func TestRetryDelay(t *testing.T) {
	h := newHarness(Config{RetryDelay: 30 * time.Second})
	ctx := context.Background()
	calls := 0
	h.registry.Register(models.JobSendEmail, func(context.Context, json.RawMessage) error {
		calls++
		if calls == 1 {
			return errors.New("try later")
		}
		return nil
	})
	h.enqueue(t, models.JobSendEmail, map[string]any{})

	out, err := h.processor.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, out.Status)

	out, err = h.processor.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, out.Job, "still waiting out the delay")

	h.clock.Advance(31 * time.Second)
	out, err = h.processor.ProcessNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, out.Status)
}

func TestRequeueExpired(t *testing.T) {
	h := newHarness(Config{Lease: time.Minute})
	ctx := context.Background()
	id := h.enqueue(t, models.JobSendEmail, map[string]any{})

	_, err := h.store.ClaimNext(ctx, h.clock.Now(), time.Minute)
	require.NoError(t, err)

	n, err := h.processor.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "lease still held")

	h.clock.Advance(2 * time.Minute)
	n, err = h.processor.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	j := h.job(t, id)
	assert.Equal(t, models.JobPending, j.Status)
	assert.Equal(t, 1, j.Attempts)

	assert.ErrorIs(t, h.store.Complete(ctx, id, h.clock.Now()), ErrNotClaimed, "the stale worker lost its claim")
}

func TestDrain(t *testing.T) {
	h := newHarness(Config{})
	var ran int32
	h.registry.Register(models.JobSendEmail, func(_ context.Context, raw json.RawMessage) error {
		atomic.AddInt32(&ran, 1)
		var p struct{ Fail bool }
		_ = json.Unmarshal(raw, &p)
		if p.Fail {
			return errors.New("boom")
		}
		return nil
	})
	for i := 0; i < 7; i++ {
		h.enqueue(t, models.JobSendEmail, map[string]bool{"Fail": i == 0})
	}

	stats, err := h.processor.Drain(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Claimed)
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))

	stats, err = h.processor.Drain(context.Background(), 100, 4)
	require.NoError(t, err)
	assert.Equal(t, stats.Claimed, stats.Completed+stats.Retrying+stats.Failed)

	counts, err := h.store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, counts[models.JobCompleted])
	assert.Equal(t, 1, counts[models.JobFailed])
}

func TestRecipientsAcceptsStringOrList(t *testing.T) {
	var p SendEmailPayload
	require.NoError(t, json.Unmarshal([]byte(`{"to":"a@b.com"}`), &p))
	assert.Equal(t, Recipients{"a@b.com"}, p.To)
	require.NoError(t, json.Unmarshal([]byte(`{"to":["a@b.com","c@d.com"]}`), &p))
	assert.Equal(t, Recipients{"a@b.com", "c@d.com"}, p.To)
}
