package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

// MemoryStore keeps records in process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu         sync.RWMutex
	records    []models.AuditRecord
	systemLogs []models.SystemLog
	// Err, when set, is returned by every write.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertAudit(_ context.Context, rec models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) InsertSystemLog(_ context.Context, entry models.SystemLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.systemLogs = append(m.systemLogs, entry)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, tenantID uuid.UUID, q Query) ([]models.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.AuditRecord
	for _, r := range m.records {
		if r.TenantID != tenantID {
			continue
		}
		if q.Action != "" && r.Action != q.Action {
			continue
		}
		if q.StartDate != nil && r.CreatedAt.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && r.CreatedAt.After(*q.EndDate) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Records returns every audit record written so far.
func (m *MemoryStore) Records() []models.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditRecord(nil), m.records...)
}

// SystemLogs returns every system log entry written so far.
func (m *MemoryStore) SystemLogs() []models.SystemLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.SystemLog(nil), m.systemLogs...)
}
