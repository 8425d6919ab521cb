package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/logger"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// KeyService handles owner-authored key management. Creation and
// modification leave a KeyCreate/KeyModify audit entry in the same
// transaction as the key write.
type KeyService struct {
	apps  repository.AppStore
	keys  repository.KeyStore
	audit repository.AuditStore
	tx    Transactor
	cfg   *config.Config
	log   *logger.Logger
}

// NewKeyService creates a new KeyService
func NewKeyService(
	apps repository.AppStore,
	keys repository.KeyStore,
	audit repository.AuditStore,
	tx Transactor,
	cfg *config.Config,
	log *logger.Logger,
) *KeyService {
	return &KeyService{
		apps:  apps,
		keys:  keys,
		audit: audit,
		tx:    tx,
		cfg:   cfg,
		log:   log.WithComponent("key_service"),
	}
}

// CreateKeyRequest carries a direct key creation by an application owner
type CreateKeyRequest struct {
	AppID       string
	Token       *string
	Description *string
	Activations *int
	Active      *bool
	CallerIP    string
}

// CreateKey creates a key in an application owned by the user. A missing
// token gets a random one; the key's owner is inherited from the
// application.
func (s *KeyService) CreateKey(ctx context.Context, userID, username string, req CreateKeyRequest) (*model.Key, error) {
	app, err := s.apps.GetByIDForUser(ctx, req.AppID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}

	token := ""
	if req.Token != nil {
		token = *req.Token
	}
	if token == "" {
		token, err = GenerateToken(s.cfg.License.TokenLength)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	key := &model.Key{
		ID:          uuid.New().String(),
		UserID:      app.UserID,
		AppID:       app.ID,
		Token:       token,
		Description: req.Description,
		Activations: model.UnlimitedActivations,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Activations != nil {
		key.Activations = *req.Activations
	}
	if req.Active != nil {
		key.Active = *req.Active
	}

	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.keys.WithTx(tx).Create(ctx, key); err != nil {
			return err
		}
		return s.audit.WithTx(tx).Create(ctx, &model.AuditLog{
			ID:          uuid.New().String(),
			AppID:       &app.ID,
			KeyID:       &key.ID,
			UserID:      userID,
			Event:       model.EventKeyCreate,
			Description: fmt.Sprintf("New key created by %s (%s)", username, req.CallerIP),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key: %w", err)
	}

	s.log.Info().Str("key_id", key.ID).Str("app_id", app.ID).Msg("key created")
	return key, nil
}

// GetKey returns a key owned by the user
func (s *KeyService) GetKey(ctx context.Context, userID, keyID string) (*model.Key, error) {
	key, err := s.keys.GetByIDForUser(ctx, keyID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	return key, nil
}

// ListUserKeys returns all keys owned by the user
func (s *KeyService) ListUserKeys(ctx context.Context, userID string) ([]model.Key, error) {
	keys, err := s.keys.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// UpdateKeyRequest carries the owner-editable key fields. The activation
// counter can be reset here; the engine itself only ever decrements it.
type UpdateKeyRequest struct {
	Token       *string
	Description *string
	Activations *int
	Active      *bool
	CallerIP    string
}

// UpdateKey modifies a key owned by the user and records a KeyModify entry
func (s *KeyService) UpdateKey(ctx context.Context, userID, username, keyID string, req UpdateKeyRequest) (*model.Key, error) {
	key, err := s.GetKey(ctx, userID, keyID)
	if err != nil {
		return nil, err
	}

	if req.Token != nil && *req.Token != "" {
		key.Token = *req.Token
	}
	if req.Description != nil {
		key.Description = req.Description
	}
	if req.Activations != nil {
		key.Activations = *req.Activations
	}
	if req.Active != nil {
		key.Active = *req.Active
	}

	now := time.Now().UTC()
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.keys.WithTx(tx).Update(ctx, key); err != nil {
			return err
		}
		return s.audit.WithTx(tx).Create(ctx, &model.AuditLog{
			ID:          uuid.New().String(),
			AppID:       &key.AppID,
			KeyID:       &key.ID,
			UserID:      userID,
			Event:       model.EventKeyModify,
			Description: fmt.Sprintf("Key modified by %s (%s)", username, req.CallerIP),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update key: %w", err)
	}

	s.log.Info().Str("key_id", key.ID).Msg("key updated")
	return key, nil
}

// DeleteKey removes a key owned by the user
func (s *KeyService) DeleteKey(ctx context.Context, userID, keyID string) error {
	key, err := s.GetKey(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if err := s.keys.Delete(ctx, key.ID); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	s.log.Info().Str("key_id", key.ID).Msg("key deleted")
	return nil
}

// ListUserAuditLog returns the user's audit entries, newest first
func (s *KeyService) ListUserAuditLog(ctx context.Context, userID string) ([]model.AuditLog, error) {
	entries, err := s.audit.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	return entries, nil
}
