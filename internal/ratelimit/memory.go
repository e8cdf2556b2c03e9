package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Take(_ context.Context, key string, limit int, d time.Duration, now time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) > d {
		s.windows[key] = &window{start: now, count: 1}
		return true, 1, nil
	}
	if w.count >= limit {
		return false, w.count, nil
	}
	w.count++
	return true, w.count, nil
}
