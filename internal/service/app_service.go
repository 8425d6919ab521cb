package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/logger"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

// AppService handles application management for the UI/admin collaborators.
// Every lookup is scoped to the acting user; foreign applications surface
// as ErrNotFound.
type AppService struct {
	apps repository.AppStore
	keys repository.KeyStore
	cfg  *config.Config
	log  *logger.Logger
}

// NewAppService creates a new AppService
func NewAppService(apps repository.AppStore, keys repository.KeyStore, cfg *config.Config, log *logger.Logger) *AppService {
	return &AppService{
		apps: apps,
		keys: keys,
		cfg:  cfg,
		log:  log.WithComponent("app_service"),
	}
}

// CreateApp creates an application owned by the given user, generating a
// fresh bulk-provisioning secret.
func (s *AppService) CreateApp(ctx context.Context, userID, name string) (*model.Application, error) {
	masterKey, err := GenerateToken(s.cfg.License.MasterKeyLength)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	app := &model.Application{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		MasterKey: masterKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	s.log.Info().Str("app_id", app.ID).Str("user_id", userID).Msg("application created")
	return app, nil
}

// GetApp returns an application owned by the user
func (s *AppService) GetApp(ctx context.Context, userID, appID string) (*model.Application, error) {
	app, err := s.apps.GetByIDForUser(ctx, appID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return app, nil
}

// ListUserApps returns all applications owned by the user
func (s *AppService) ListUserApps(ctx context.Context, userID string) ([]model.Application, error) {
	apps, err := s.apps.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// UpdateAppRequest carries the editable application fields
type UpdateAppRequest struct {
	Name *string
	// RotateMasterKey replaces the bulk secret with a new random one
	RotateMasterKey bool
}

// UpdateApp updates an application owned by the user
func (s *AppService) UpdateApp(ctx context.Context, userID, appID string, req UpdateAppRequest) (*model.Application, error) {
	app, err := s.GetApp(ctx, userID, appID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.RotateMasterKey {
		masterKey, err := GenerateToken(s.cfg.License.MasterKeyLength)
		if err != nil {
			return nil, err
		}
		app.MasterKey = masterKey
	}

	if err := s.apps.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to update application: %w", err)
	}
	return app, nil
}

// DeleteApp removes an application owned by the user. Its keys cascade;
// audit entries stay behind with nulled references.
func (s *AppService) DeleteApp(ctx context.Context, userID, appID string) error {
	app, err := s.GetApp(ctx, userID, appID)
	if err != nil {
		return err
	}

	if err := s.apps.Delete(ctx, app.ID); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	s.log.Info().Str("app_id", app.ID).Str("user_id", userID).Msg("application deleted")
	return nil
}

// ListAppKeys returns all keys in an application owned by the user
func (s *AppService) ListAppKeys(ctx context.Context, userID, appID string) ([]model.Key, error) {
	app, err := s.GetApp(ctx, userID, appID)
	if err != nil {
		return nil, err
	}

	keys, err := s.keys.ListByApp(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list application keys: %w", err)
	}
	return keys, nil
}
