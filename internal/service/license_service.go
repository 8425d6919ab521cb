package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keygate/keygate/internal/logger"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// License service errors. NotFound deliberately covers every identity
// mismatch (unknown app, unknown token, wrong hwid, wrong bulk secret) so
// callers cannot probe which part failed.
var (
	ErrNotFound             = errors.New("key or application not found")
	ErrKeyInactive          = errors.New("key not active")
	ErrActivationsExhausted = errors.New("no further activations allowed")
	ErrTokenMissing         = errors.New("key specification missing token")
)

// Transactor runs a function inside a database transaction
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// LicenseService implements the key validation engine: Check, Activate and
// BulkCreate. State changes and their audit entries commit together.
type LicenseService struct {
	apps  repository.AppStore
	keys  repository.KeyStore
	audit repository.AuditStore
	tx    Transactor
	log   *logger.Logger
}

// NewLicenseService creates a new LicenseService
func NewLicenseService(
	apps repository.AppStore,
	keys repository.KeyStore,
	audit repository.AuditStore,
	tx Transactor,
	log *logger.Logger,
) *LicenseService {
	return &LicenseService{
		apps:  apps,
		keys:  keys,
		audit: audit,
		tx:    tx,
		log:   log.WithComponent("license_service"),
	}
}

// CheckRequest carries a heartbeat call. CallerIP arrives pre-classified
// ("203.0.113.9 (Routable)").
type CheckRequest struct {
	Token      string
	AppID      string
	HWID       string
	DeviceName *string
	CallerIP   string
}

// Check re-validates a bound key without spending activation budget. The
// key must match token, app and hwid exactly; a hwid mismatch is reported
// as ErrNotFound, indistinguishable from a bad token.
func (s *LicenseService) Check(ctx context.Context, req CheckRequest) error {
	app, err := s.apps.GetByID(ctx, req.AppID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load application: %w", err)
	}

	key, err := s.keys.GetByTokenAppHWID(ctx, req.Token, app.ID, req.HWID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load key: %w", err)
	}

	if !key.Active {
		return ErrKeyInactive
	}

	// Silent re-label: a supplied device name piggybacks on the check,
	// there is no separate audit event for it.
	deviceName := key.DeviceName
	if req.DeviceName != nil {
		deviceName = req.DeviceName
	}

	now := time.Now().UTC()
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.keys.WithTx(tx).RecordCheck(ctx, key.ID, req.DeviceName, now); err != nil {
			return err
		}
		return s.audit.WithTx(tx).Create(ctx, &model.AuditLog{
			ID:          uuid.New().String(),
			AppID:       &app.ID,
			KeyID:       &key.ID,
			UserID:      key.UserID,
			Event:       model.EventKeyCheck,
			Description: fmt.Sprintf("Checked from IP: %s. Device Name: %s", req.CallerIP, strValue(deviceName)),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to record key check: %w", err)
	}

	s.log.Debug().Str("key_id", key.ID).Str("app_id", app.ID).Msg("key checked")
	return nil
}

// ActivateRequest carries a binding call
type ActivateRequest struct {
	Token      string
	AppID      string
	HWID       string
	DeviceName *string
	CallerIP   string
}

// Activate consumes one unit of the key's activation budget and rebinds it
// to the supplied device. Lookup is by token and app only: re-hosting to a
// new hwid is allowed on every successful activation. Returns the remaining
// budget (-1 for unlimited keys).
func (s *LicenseService) Activate(ctx context.Context, req ActivateRequest) (int, error) {
	app, err := s.apps.GetByID(ctx, req.AppID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to load application: %w", err)
	}

	key, err := s.keys.GetByTokenApp(ctx, req.Token, app.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to load key: %w", err)
	}

	if !key.Active {
		return 0, ErrKeyInactive
	}
	if !key.CanActivate() {
		return 0, ErrActivationsExhausted
	}

	now := time.Now().UTC()
	var remaining int
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		keys := s.keys.WithTx(tx)

		var err error
		remaining, err = keys.ConsumeActivation(ctx, key.ID, req.HWID, req.DeviceName, now)
		if errors.Is(err, repository.ErrNotFound) {
			// The guard did not hold: a concurrent caller spent the last
			// activation or revoked the key between our read and the update.
			current, readErr := keys.GetByID(ctx, key.ID)
			if readErr != nil {
				if errors.Is(readErr, repository.ErrNotFound) {
					return ErrNotFound
				}
				return readErr
			}
			if !current.Active {
				return ErrKeyInactive
			}
			return ErrActivationsExhausted
		}
		if err != nil {
			return err
		}

		return s.audit.WithTx(tx).Create(ctx, &model.AuditLog{
			ID:     uuid.New().String(),
			AppID:  &app.ID,
			KeyID:  &key.ID,
			UserID: key.UserID,
			Event:  model.EventKeyActivate,
			Description: fmt.Sprintf("Activated from IP: %s. Device Name: %s. Remaining Activations: %d",
				req.CallerIP, strValue(req.DeviceName), remaining),
			CreatedAt: now,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrKeyInactive), errors.Is(err, ErrActivationsExhausted):
			return 0, err
		default:
			return 0, fmt.Errorf("failed to activate key: %w", err)
		}
	}

	s.log.Debug().
		Str("key_id", key.ID).
		Str("app_id", app.ID).
		Int("remaining", remaining).
		Msg("key activated")
	return remaining, nil
}

// KeySpec describes one key in a bulk-provisioning request. Absent optional
// fields take the model defaults: unlimited activations, active, no
// description.
type KeySpec struct {
	Token       string
	Activations *int
	Active      *bool
	Description *string
}

// BulkCreateRequest carries a bulk-provisioning call authorized by the
// application's master key
type BulkCreateRequest struct {
	AppID     string
	MasterKey string
	Specs     []KeySpec
	CallerIP  string
}

// BulkCreate provisions one key per specification, owned by the
// application's owner. The whole batch stands or falls together: a spec
// without a token fails the request before anything is persisted, and keys
// plus their audit entries commit in one transaction.
func (s *LicenseService) BulkCreate(ctx context.Context, req BulkCreateRequest) (int, error) {
	app, err := s.apps.GetByIDAndMasterKey(ctx, req.AppID, req.MasterKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to load application: %w", err)
	}

	for _, spec := range req.Specs {
		if spec.Token == "" {
			return 0, ErrTokenMissing
		}
	}

	now := time.Now().UTC()
	keys := make([]*model.Key, 0, len(req.Specs))
	for _, spec := range req.Specs {
		key := &model.Key{
			ID:          uuid.New().String(),
			UserID:      app.UserID,
			AppID:       app.ID,
			Token:       spec.Token,
			Description: spec.Description,
			Activations: model.UnlimitedActivations,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if spec.Activations != nil {
			key.Activations = *spec.Activations
		}
		if spec.Active != nil {
			key.Active = *spec.Active
		}
		keys = append(keys, key)
	}

	entries := make([]*model.AuditLog, 0, len(keys))
	for _, key := range keys {
		keyID := key.ID
		entries = append(entries, &model.AuditLog{
			ID:          uuid.New().String(),
			AppID:       &app.ID,
			KeyID:       &keyID,
			UserID:      app.UserID,
			Event:       model.EventKeyCreate,
			Description: fmt.Sprintf("New key created by %s (%s)", app.OwnerUsername, req.CallerIP),
			CreatedAt:   now,
		})
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.keys.WithTx(tx).CreateBatch(ctx, keys); err != nil {
			return err
		}
		// Logs go in strictly after keys: they reference the created rows.
		return s.audit.WithTx(tx).CreateBatch(ctx, entries)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to bulk create keys: %w", err)
	}

	s.log.Info().
		Str("app_id", app.ID).
		Int("created", len(keys)).
		Msg("keys bulk created")
	return len(keys), nil
}

// strValue renders an optional string for audit descriptions
func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
