package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/database"
	"github.com/keygate/keygate/internal/model"
)

const keyColumns = `id, user_id, app_id, token, description, hwid, device_name,
	       activations, active, last_check, last_activation, created_at, updated_at`

// KeyRepository handles license key persistence
type KeyRepository struct {
	q database.Queryer
}

// NewKeyRepository creates a new KeyRepository
func NewKeyRepository(db *database.Postgres) *KeyRepository {
	return &KeyRepository{q: db}
}

// WithTx returns a KeyRepository bound to the given transaction
func (r *KeyRepository) WithTx(tx *sql.Tx) KeyStore {
	return &KeyRepository{q: tx}
}

// Create inserts a new key
func (r *KeyRepository) Create(ctx context.Context, key *model.Key) error {
	query := `
		INSERT INTO keys (id, user_id, app_id, token, description, hwid, device_name,
		    activations, active, last_check, last_activation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.q.ExecContext(ctx, query,
		key.ID,
		key.UserID,
		key.AppID,
		key.Token,
		key.Description,
		key.HWID,
		key.DeviceName,
		key.Activations,
		key.Active,
		key.LastCheck,
		key.LastActivation,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}
	return nil
}

// CreateBatch inserts all keys in a single statement
func (r *KeyRepository) CreateBatch(ctx context.Context, keys []*model.Key) error {
	if len(keys) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO keys (id, user_id, app_id, token, description, hwid, device_name,
		    activations, active, last_check, last_activation, created_at, updated_at)
		VALUES `)

	args := make([]interface{}, 0, len(keys)*13)
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 13
		sb.WriteString("(")
		for j := 1; j <= 13; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args,
			key.ID,
			key.UserID,
			key.AppID,
			key.Token,
			key.Description,
			key.HWID,
			key.DeviceName,
			key.Activations,
			key.Active,
			key.LastCheck,
			key.LastActivation,
			key.CreatedAt,
			key.UpdatedAt,
		)
	}

	_, err := r.q.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("failed to create key batch: %w", err)
	}
	return nil
}

// GetByID retrieves a key by ID
func (r *KeyRepository) GetByID(ctx context.Context, id string) (*model.Key, error) {
	query := fmt.Sprintf(`SELECT %s FROM keys WHERE id = $1`, keyColumns)
	return r.scanKey(r.q.QueryRowContext(ctx, query, id))
}

// GetByIDForUser retrieves a key owned by the given user
func (r *KeyRepository) GetByIDForUser(ctx context.Context, id, userID string) (*model.Key, error) {
	query := fmt.Sprintf(`SELECT %s FROM keys WHERE id = $1 AND user_id = $2`, keyColumns)
	return r.scanKey(r.q.QueryRowContext(ctx, query, id, userID))
}

// GetByTokenApp finds a key by token within an application. No hwid filter:
// activation may rebind a key to a new device.
func (r *KeyRepository) GetByTokenApp(ctx context.Context, token, appID string) (*model.Key, error) {
	query := fmt.Sprintf(`SELECT %s FROM keys WHERE token = $1 AND app_id = $2`, keyColumns)
	return r.scanKey(r.q.QueryRowContext(ctx, query, token, appID))
}

// GetByTokenAppHWID finds a key by token and exact hardware binding. A hwid
// mismatch surfaces as ErrNotFound, same as an unknown token.
func (r *KeyRepository) GetByTokenAppHWID(ctx context.Context, token, appID, hwid string) (*model.Key, error) {
	query := fmt.Sprintf(`SELECT %s FROM keys WHERE token = $1 AND app_id = $2 AND hwid = $3`, keyColumns)
	return r.scanKey(r.q.QueryRowContext(ctx, query, token, appID, hwid))
}

// ListByUser returns all keys owned by a user
func (r *KeyRepository) ListByUser(ctx context.Context, userID string) ([]model.Key, error) {
	query := fmt.Sprintf(`SELECT %s FROM keys WHERE user_id = $1 ORDER BY created_at DESC`, keyColumns)
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user keys: %w", err)
	}
	return r.collectKeys(rows)
}

// ListByApp returns all keys belonging to an application
func (r *KeyRepository) ListByApp(ctx context.Context, appID string) ([]model.Key, error) {
	query := fmt.Sprintf(`SELECT %s FROM keys WHERE app_id = $1 ORDER BY created_at DESC`, keyColumns)
	rows, err := r.q.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to query app keys: %w", err)
	}
	return r.collectKeys(rows)
}

// Update updates the management-editable fields of a key
func (r *KeyRepository) Update(ctx context.Context, key *model.Key) error {
	query := `
		UPDATE keys
		SET token = $1, description = $2, activations = $3, active = $4, updated_at = NOW()
		WHERE id = $5
	`
	_, err := r.q.ExecContext(ctx, query,
		key.Token,
		key.Description,
		key.Activations,
		key.Active,
		key.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}
	return nil
}

// RecordCheck stores the outcome of a heartbeat: device_name is relabeled
// when supplied, last_check always moves forward.
func (r *KeyRepository) RecordCheck(ctx context.Context, id string, deviceName *string, at time.Time) error {
	query := `
		UPDATE keys
		SET device_name = COALESCE($1, device_name), last_check = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := r.q.ExecContext(ctx, query, deviceName, at, id)
	if err != nil {
		return fmt.Errorf("failed to record key check: %w", err)
	}
	return nil
}

// ConsumeActivation spends one unit of the key's activation budget and
// rebinds it to the given device in a single guarded statement. The guard
// re-checks active and the counter, so concurrent callers racing on the
// last activation serialize on the row: one wins, the rest see ErrNotFound.
// The unlimited sentinel (-1) passes the guard and is never decremented.
func (r *KeyRepository) ConsumeActivation(ctx context.Context, id string, hwid string, deviceName *string, at time.Time) (int, error) {
	query := `
		UPDATE keys
		SET activations = CASE WHEN activations = -1 THEN -1 ELSE activations - 1 END,
		    hwid = $1, device_name = $2, last_activation = $3, updated_at = NOW()
		WHERE id = $4 AND active = TRUE AND (activations > 0 OR activations = -1)
		RETURNING activations
	`
	var remaining int
	err := r.q.QueryRowContext(ctx, query, hwid, deviceName, at, id).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume activation: %w", err)
	}
	return remaining, nil
}

// Delete removes a key record
func (r *KeyRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM keys WHERE id = $1`
	_, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// collectKeys drains a key result set
func (r *KeyRepository) collectKeys(rows *sql.Rows) ([]model.Key, error) {
	defer rows.Close()

	var keys []model.Key
	for rows.Next() {
		var key model.Key
		err := rows.Scan(
			&key.ID,
			&key.UserID,
			&key.AppID,
			&key.Token,
			&key.Description,
			&key.HWID,
			&key.DeviceName,
			&key.Activations,
			&key.Active,
			&key.LastCheck,
			&key.LastActivation,
			&key.CreatedAt,
			&key.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate key rows: %w", err)
	}
	return keys, nil
}

// scanKey scans a single key row
func (r *KeyRepository) scanKey(row *sql.Row) (*model.Key, error) {
	var key model.Key
	err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.AppID,
		&key.Token,
		&key.Description,
		&key.HWID,
		&key.DeviceName,
		&key.Activations,
		&key.Active,
		&key.LastCheck,
		&key.LastActivation,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan key: %w", err)
	}
	return &key, nil
}
