package handler

import (
	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/database"
	"github.com/keygate/keygate/internal/logger"
	"github.com/keygate/keygate/internal/service"
)

// Handler holds all HTTP handlers
type Handler struct {
	db         *database.Postgres
	rdb        *database.Redis
	log        *logger.Logger
	cfg        *config.Config
	licenseSvc *service.LicenseService
	appSvc     *service.AppService
	keySvc     *service.KeyService
}

// New creates a new Handler instance
func New(db *database.Postgres, rdb *database.Redis, log *logger.Logger, cfg *config.Config, licenseSvc *service.LicenseService, appSvc *service.AppService, keySvc *service.KeyService) *Handler {
	return &Handler{
		db:         db,
		rdb:        rdb,
		log:        log,
		cfg:        cfg,
		licenseSvc: licenseSvc,
		appSvc:     appSvc,
		keySvc:     keySvc,
	}
}
