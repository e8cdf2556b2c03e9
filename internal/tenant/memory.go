package tenant

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[uuid.UUID]*models.Tenant
	memberships []models.Membership
	completed   map[uuid.UUID]int
	// Writes counts capability writes, so callers can assert idempotence.
	Writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:   make(map[uuid.UUID]*models.Tenant),
		completed: make(map[uuid.UUID]int),
	}
}

func (m *MemoryStore) AddTenant(t models.Tenant) *models.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = models.TenantActive
	}
	if t.Capabilities == nil {
		t.Capabilities = models.Capabilities{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.CreatedAt
	m.tenants[t.ID] = &t
	return &t
}

func (m *MemoryStore) AddMembership(mem models.Membership) models.Membership {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC().Add(time.Duration(len(m.memberships)) * time.Millisecond)
	}
	m.memberships = append(m.memberships, mem)
	return mem
}

func (m *MemoryStore) SetSuspended(id uuid.UUID, suspended bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		t.Suspended = suspended
	}
}

func (m *MemoryStore) AddCompletedEvent(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[id]++
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	cp.Capabilities = copyCaps(t.Capabilities)
	return &cp, nil
}

func (m *MemoryStore) ActiveMembership(_ context.Context, identityID uuid.UUID) (*models.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []models.Membership
	for _, mem := range m.memberships {
		if mem.IdentityID == identityID && mem.Status == models.MembershipActive {
			active = append(active, mem)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Selected != active[j].Selected {
			return active[i].Selected
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return &active[0], nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id uuid.UUID, status models.TenantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	return nil
}

func (m *MemoryStore) CountActiveMembers(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, mem := range m.memberships {
		if mem.TenantID == id && mem.Status == models.MembershipActive {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountCompletedEvents(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed[id], nil
}

func (m *MemoryStore) Capabilities(_ context.Context, id uuid.UUID) (models.Capabilities, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCaps(t.Capabilities), nil
}

func (m *MemoryStore) MergeCapabilities(_ context.Context, id uuid.UUID, changed models.Capabilities) (models.Capabilities, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	applied := models.Capabilities{}
	for k, v := range changed {
		if cur, ok := t.Capabilities[k]; ok && cur == v {
			continue
		}
		t.Capabilities[k] = v
		applied[k] = v
	}
	if len(applied) > 0 {
		m.Writes++
	}
	return applied, nil
}

func (m *MemoryStore) ReplaceCapabilities(_ context.Context, id uuid.UUID, caps models.Capabilities) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Capabilities = copyCaps(caps)
	m.Writes++
	return nil
}

func copyCaps(c models.Capabilities) models.Capabilities {
	out := make(models.Capabilities, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
