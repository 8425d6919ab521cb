package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/keygate/keygate/internal/database"
	"github.com/keygate/keygate/internal/model"
)

// AuditRepository handles audit log persistence. The trail is append-only:
// nothing here updates or deletes.
type AuditRepository struct {
	q database.Queryer
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{q: db}
}

// WithTx returns an AuditRepository bound to the given transaction
func (r *AuditRepository) WithTx(tx *sql.Tx) AuditStore {
	return &AuditRepository{q: tx}
}

// Create inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, app_id, key_id, user_id, event, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		entry.ID,
		entry.AppID,
		entry.KeyID,
		entry.UserID,
		entry.Event,
		entry.Description,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// CreateBatch inserts all entries in a single statement
func (r *AuditRepository) CreateBatch(ctx context.Context, entries []*model.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO audit_logs (id, app_id, key_id, user_id, event, description, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(entries)*7)
	for i, entry := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			entry.ID,
			entry.AppID,
			entry.KeyID,
			entry.UserID,
			entry.Event,
			entry.Description,
			entry.CreatedAt,
		)
	}

	_, err := r.q.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("failed to create audit log batch: %w", err)
	}
	return nil
}

// ListByUser returns a user's audit entries, newest first
func (r *AuditRepository) ListByUser(ctx context.Context, userID string) ([]model.AuditLog, error) {
	query := `
		SELECT id, app_id, key_id, user_id, event, description, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLog
	for rows.Next() {
		var entry model.AuditLog
		err := rows.Scan(
			&entry.ID,
			&entry.AppID,
			&entry.KeyID,
			&entry.UserID,
			&entry.Event,
			&entry.Description,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log rows: %w", err)
	}
	return entries, nil
}
