package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// MemoryStore serializes every operation on one mutex, which makes ClaimNext
// atomic.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
	seq  map[uuid.UUID]int
	next int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[uuid.UUID]*models.Job),
		seq:  make(map[uuid.UUID]int),
	}
}

func (m *MemoryStore) Insert(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	m.seq[job.ID] = m.next
	m.next++
	return nil
}

func (m *MemoryStore) ClaimNext(_ context.Context, now time.Time, lease time.Duration) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var eligible []*models.Job
	for _, j := range m.jobs {
		if j.Status != models.JobPending {
			continue
		}
		if j.LockedUntil != nil && j.LockedUntil.After(now) {
			continue
		}
		eligible = append(eligible, j)
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(a, b int) bool {
		if !eligible[a].CreatedAt.Equal(eligible[b].CreatedAt) {
			return eligible[a].CreatedAt.Before(eligible[b].CreatedAt)
		}
		return m.seq[eligible[a].ID] < m.seq[eligible[b].ID]
	})

	j := eligible[0]
	until := now.Add(lease)
	j.Status = models.JobInProgress
	j.UpdatedAt = now
	j.LockedUntil = &until
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) Complete(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobInProgress {
		return ErrNotClaimed
	}
	j.Status = models.JobCompleted
	j.UpdatedAt = now
	j.LockedUntil = nil
	return nil
}

func (m *MemoryStore) Fail(_ context.Context, id uuid.UUID, msg string, now time.Time, retryAt *time.Time) (models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobInProgress {
		return "", ErrNotClaimed
	}
	recordAttempt(j, msg, now)
	if j.Attempts >= j.MaxAttempts {
		j.Status = models.JobFailed
		j.LockedUntil = nil
	} else {
		j.Status = models.JobPending
		j.LockedUntil = retryAt
	}
	return j.Status, nil
}

func (m *MemoryStore) Terminate(_ context.Context, id uuid.UUID, msg string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != models.JobInProgress {
		return ErrNotClaimed
	}
	recordAttempt(j, msg, now)
	j.Status = models.JobFailed
	j.LockedUntil = nil
	return nil
}

func recordAttempt(j *models.Job, msg string, now time.Time) {
	j.Attempts++
	j.LastError = &msg
	j.UpdatedAt = now
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) RequeueExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status != models.JobInProgress || j.LockedUntil == nil || !j.LockedUntil.Before(now) {
			continue
		}
		recordAttempt(j, leaseExpiredMessage, now)
		j.LockedUntil = nil
		if j.Attempts >= j.MaxAttempts {
			j.Status = models.JobFailed
		} else {
			j.Status = models.JobPending
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) CountByStatus(_ context.Context) (map[models.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[models.JobStatus]int)
	for _, j := range m.jobs {
		out[j.Status]++
	}
	return out, nil
}
