package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/metrics"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

const writeTimeout = 5 * time.Second

const (
	SourceSecurity = "security"
	SourcePlatform = "platform"
)

type Store interface {
	InsertAudit(ctx context.Context, rec models.AuditRecord) error
	InsertSystemLog(ctx context.Context, entry models.SystemLog) error
	ListAudit(ctx context.Context, tenantID uuid.UUID, q Query) ([]models.AuditRecord, error)
}

type Query struct {
	StartDate *time.Time
	EndDate   *time.Time
	Action    string
	Limit     int
	Offset    int
}

// Service is the audit sink. Writes never fail the caller: a record that
// cannot be stored is written to the process log instead.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Append records an action taken inside a tenant.
func (s *Service) Append(ctx context.Context, rec models.AuditRecord) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	ctx, cancel := detached(ctx)
	defer cancel()

	if err := s.store.InsertAudit(ctx, rec); err != nil {
		metrics.AuditDropped.Inc()
		s.logger.Error("audit write failed",
			"error", err,
			"organisation_id", rec.TenantID,
			"action", rec.Action,
			"resource_table", rec.ResourceTable,
			"resource_id", rec.ResourceID,
			"details", rec.Details,
		)
	}
}

// Platform records an administrative intervention against a tenant. These go
// to system_logs so they stay distinct from the tenant's own audit trail.
func (s *Service) Platform(ctx context.Context, tenantID uuid.UUID, action string, meta map[string]any) {
	s.system(ctx, models.SystemLog{
		Level:    models.LevelCritical,
		Source:   SourcePlatform,
		Message:  action,
		TenantID: &tenantID,
		Metadata: meta,
	})
}

// Security records a security signal such as a rate-limit denial.
func (s *Service) Security(ctx context.Context, event string, meta map[string]any) {
	s.system(ctx, models.SystemLog{
		Level:    models.LevelWarning,
		Source:   SourceSecurity,
		Message:  event,
		Metadata: meta,
	})
}

func (s *Service) system(ctx context.Context, entry models.SystemLog) {
	entry.ID = uuid.New()
	entry.CreatedAt = s.now().UTC()

	ctx, cancel := detached(ctx)
	defer cancel()

	if err := s.store.InsertSystemLog(ctx, entry); err != nil {
		metrics.AuditDropped.Inc()
		s.logger.Error("system log write failed",
			"error", err,
			"source", entry.Source,
			"message", entry.Message,
			"metadata", entry.Metadata,
		)
	}
}

// Query lists a tenant's audit records, newest first.
func (s *Service) Query(ctx context.Context, tenantID uuid.UUID, q Query) ([]models.AuditRecord, error) {
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.store.ListAudit(ctx, tenantID, q)
}

// detached keeps the write alive when the request that triggered it is
// cancelled, bounded by writeTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}
