// Package app opens the storage backend selected by configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/valtp/saas-platform/panel-service/internal/config"
	"github.com/valtp/saas-platform/panel-service/internal/db"
	"github.com/valtp/saas-platform/panel-service/internal/repository"
	"github.com/valtp/saas-platform/panel-service/internal/repository/memstore"
	"github.com/valtp/saas-platform/panel-service/internal/service"
)

// Stores groups the tables the services work on.
type Stores struct {
	Instances service.InstanceStore
	Panels    service.PanelStore
	Profiles  service.ProfileStore
	Logs      service.AuditLog

	database *db.Database
}

// OpenStores connects to PostgreSQL, or builds an empty in-memory store
// when the driver is "memory". With AutoMigrate set, pending migrations are
// applied before returning.
func OpenStores(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*Stores, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := memstore.New()
		return &Stores{
			Instances: mem.Instances(),
			Panels:    mem.Panels(),
			Profiles:  mem.Profiles(),
			Logs:      mem.Logs(),
		}, nil
	}

	database, err := db.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if _, err := db.RunMigrations(ctx, database.Pool, logger); err != nil {
			database.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	return &Stores{
		Instances: repository.NewInstanceRepository(database.Pool),
		Panels:    repository.NewPanelRepository(database.Pool),
		Profiles:  repository.NewProfileRepository(database.Pool),
		Logs:      repository.NewLogRepository(database.Pool),
		database:  database,
	}, nil
}

func (s *Stores) Close() {
	if s.database != nil {
		s.database.Close()
	}
}
