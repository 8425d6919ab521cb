package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keygate/keygate/internal/database"
	"github.com/keygate/keygate/internal/model"
)

// ApplicationRepository handles application data persistence
type ApplicationRepository struct {
	q database.Queryer
}

// NewApplicationRepository creates a new ApplicationRepository
func NewApplicationRepository(db *database.Postgres) *ApplicationRepository {
	return &ApplicationRepository{q: db}
}

// Create inserts a new application
func (r *ApplicationRepository) Create(ctx context.Context, app *model.Application) error {
	query := `
		INSERT INTO applications (id, user_id, name, master_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query,
		app.ID,
		app.UserID,
		app.Name,
		app.MasterKey,
		app.CreatedAt,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetByID retrieves an application by ID
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*model.Application, error) {
	query := `
		SELECT id, user_id, name, master_key, created_at, updated_at
		FROM applications
		WHERE id = $1
	`
	return r.scanApplication(r.q.QueryRowContext(ctx, query, id))
}

// GetByIDAndMasterKey retrieves an application only when both the id and the
// bulk-provisioning secret match. A wrong secret is indistinguishable from a
// wrong id: both come back as ErrNotFound.
func (r *ApplicationRepository) GetByIDAndMasterKey(ctx context.Context, id, masterKey string) (*model.Application, error) {
	query := `
		SELECT a.id, a.user_id, a.name, a.master_key, a.created_at, a.updated_at, u.username
		FROM applications a
		JOIN users u ON u.id = a.user_id
		WHERE a.id = $1 AND a.master_key = $2
	`
	var app model.Application
	err := r.q.QueryRowContext(ctx, query, id, masterKey).Scan(
		&app.ID,
		&app.UserID,
		&app.Name,
		&app.MasterKey,
		&app.CreatedAt,
		&app.UpdatedAt,
		&app.OwnerUsername,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	return &app, nil
}

// GetByIDForUser retrieves an application owned by the given user
func (r *ApplicationRepository) GetByIDForUser(ctx context.Context, id, userID string) (*model.Application, error) {
	query := `
		SELECT id, user_id, name, master_key, created_at, updated_at
		FROM applications
		WHERE id = $1 AND user_id = $2
	`
	return r.scanApplication(r.q.QueryRowContext(ctx, query, id, userID))
}

// ListByUser returns all applications owned by a user
func (r *ApplicationRepository) ListByUser(ctx context.Context, userID string) ([]model.Application, error) {
	query := `
		SELECT id, user_id, name, master_key, created_at, updated_at
		FROM applications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		var app model.Application
		err := rows.Scan(
			&app.ID,
			&app.UserID,
			&app.Name,
			&app.MasterKey,
			&app.CreatedAt,
			&app.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate application rows: %w", err)
	}
	return apps, nil
}

// Update updates the mutable fields of an application
func (r *ApplicationRepository) Update(ctx context.Context, app *model.Application) error {
	query := `
		UPDATE applications
		SET name = $1, master_key = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := r.q.ExecContext(ctx, query, app.Name, app.MasterKey, app.ID)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	return nil
}

// Delete removes an application. Keys cascade at the schema level; audit
// entries keep a nulled reference.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM applications WHERE id = $1`
	_, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return nil
}

// scanApplication scans a single application row
func (r *ApplicationRepository) scanApplication(row *sql.Row) (*model.Application, error) {
	var app model.Application
	err := row.Scan(
		&app.ID,
		&app.UserID,
		&app.Name,
		&app.MasterKey,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	return &app, nil
}
