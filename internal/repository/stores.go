package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/keygate/keygate/internal/model"
)

// AppStore defines data access for applications
type AppStore interface {
	// Create inserts a new application
	Create(ctx context.Context, app *model.Application) error
	// GetByID retrieves an application by id regardless of owner
	GetByID(ctx context.Context, id string) (*model.Application, error)
	// GetByIDAndMasterKey retrieves an application only when both id and
	// bulk secret match; either mismatch reports ErrNotFound
	GetByIDAndMasterKey(ctx context.Context, id, masterKey string) (*model.Application, error)
	// GetByIDForUser retrieves an application owned by the given user
	GetByIDForUser(ctx context.Context, id, userID string) (*model.Application, error)
	// ListByUser returns all applications owned by a user
	ListByUser(ctx context.Context, userID string) ([]model.Application, error)
	// Update updates name and master key of an application
	Update(ctx context.Context, app *model.Application) error
	// Delete removes an application; its keys go with it
	Delete(ctx context.Context, id string) error
}

// KeyStore defines data access for license keys
type KeyStore interface {
	Create(ctx context.Context, key *model.Key) error
	// CreateBatch inserts all keys in one statement
	CreateBatch(ctx context.Context, keys []*model.Key) error
	GetByID(ctx context.Context, id string) (*model.Key, error)
	// GetByIDForUser retrieves a key owned by the given user
	GetByIDForUser(ctx context.Context, id, userID string) (*model.Key, error)
	// GetByTokenApp finds a key by token within an application
	GetByTokenApp(ctx context.Context, token, appID string) (*model.Key, error)
	// GetByTokenAppHWID finds a key by token and hardware binding; a hwid
	// mismatch is reported as ErrNotFound, same as a bad token
	GetByTokenAppHWID(ctx context.Context, token, appID, hwid string) (*model.Key, error)
	ListByUser(ctx context.Context, userID string) ([]model.Key, error)
	ListByApp(ctx context.Context, appID string) ([]model.Key, error)
	// Update updates the mutable management fields of a key
	Update(ctx context.Context, key *model.Key) error
	// RecordCheck updates device_name (when supplied) and last_check
	RecordCheck(ctx context.Context, id string, deviceName *string, at time.Time) error
	// ConsumeActivation atomically decrements the activation budget and
	// rebinds the key to the given device. The guard re-checks active and
	// the counter inside the same statement; ErrNotFound means the guard
	// did not hold. Returns the remaining budget.
	ConsumeActivation(ctx context.Context, id string, hwid string, deviceName *string, at time.Time) (int, error)
	Delete(ctx context.Context, id string) error
	// WithTx returns a store bound to the given transaction
	WithTx(tx *sql.Tx) KeyStore
}

// AuditStore defines append-only access to the audit trail
type AuditStore interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	// CreateBatch inserts all entries in one statement
	CreateBatch(ctx context.Context, entries []*model.AuditLog) error
	// ListByUser returns a user's audit entries, newest first
	ListByUser(ctx context.Context, userID string) ([]model.AuditLog, error)
	// WithTx returns a store bound to the given transaction
	WithTx(tx *sql.Tx) AuditStore
}
