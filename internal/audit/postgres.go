package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/database"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

type PostgresStore struct {
	db database.DBTX
}

func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertAudit(ctx context.Context, rec models.AuditRecord) error {
	details, err := json.Marshal(orEmpty(rec.Details))
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO audit_logs (id, organisation_id, actor_id, action, resource_table, resource_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.TenantID, rec.ActorID, rec.Action, rec.ResourceTable, rec.ResourceID, details, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSystemLog(ctx context.Context, entry models.SystemLog) error {
	meta, err := json.Marshal(orEmpty(entry.Metadata))
	if err != nil {
		return fmt.Errorf("marshal system log metadata: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO system_logs (id, level, source, message, organisation_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Level, entry.Source, entry.Message, entry.TenantID, meta, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, tenantID uuid.UUID, q Query) ([]models.AuditRecord, error) {
	query := `SELECT id, organisation_id, actor_id, action, resource_table, resource_id, details, created_at
			  FROM audit_logs WHERE organisation_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if q.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, q.Action)
		argIdx++
	}
	if q.StartDate != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *q.StartDate)
		argIdx++
	}
	if q.EndDate != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *q.EndDate)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []models.AuditRecord
	for rows.Next() {
		var (
			l       models.AuditRecord
			details []byte
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ActorID, &l.Action, &l.ResourceTable, &l.ResourceID, &details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &l.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return logs, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
