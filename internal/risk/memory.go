package risk

import (
	"context"
	"sync"
	"time"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type attempt struct {
	kind    string
	subject string
	at      time.Time
}

type MemoryStore struct {
	mu       sync.Mutex
	attempts []attempt
	events   []models.RiskEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) RecordAttempt(_ context.Context, kind, subject string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt{kind: kind, subject: subject, at: at})
	return nil
}

func (m *MemoryStore) CountAttempts(_ context.Context, kind, subject string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.attempts {
		if a.kind == kind && a.subject == subject && a.at.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertEvent(_ context.Context, ev models.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) Events() []models.RiskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RiskEvent(nil), m.events...)
}
