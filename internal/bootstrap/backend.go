// Package bootstrap opens the storage backends selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rpattn/accessmap/internal/config"
	"github.com/rpattn/accessmap/internal/db"
	"github.com/rpattn/accessmap/internal/repository"
)

// Backends are the repositories a process works with. IngestionLogs is nil
// unless the PostgreSQL backend is configured.
type Backends struct {
	Mappings      repository.LearnedMappingRepository
	IngestionLogs repository.IngestionLogRepository
	closers       []func()
}

// Close releases every opened resource.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open connects the learning store backend named in cfg. For PostgreSQL,
// pending migrations are applied first.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Backends, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backends := &Backends{}

	switch cfg.Learning.Backend {
	case config.BackendFile:
		repo, err := repository.NewFileLearnedMappingRepository(cfg.Learning.Dir, logger)
		if err != nil {
			return nil, err
		}
		backends.Mappings = repo

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.Learning.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		repo, err := repository.NewSQLiteLearnedMappingRepository(ctx, cfg.Learning.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		backends.Mappings = repo
		backends.closers = append(backends.closers, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("Failed to close sqlite learning store", zap.Error(err))
			}
		})

	case config.BackendPostgres:
		conn, err := db.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		backends.closers = append(backends.closers, conn.Close)
		if err := conn.RunMigrations(logger); err != nil {
			backends.Close()
			return nil, err
		}
		backends.Mappings = repository.NewLearnedMappingRepository(conn.Pool, logger)
		backends.IngestionLogs = repository.NewIngestionLogRepository(conn.Pool)

	default:
		return nil, fmt.Errorf("unknown learning backend %q", cfg.Learning.Backend)
	}

	logger.Info("Learning store backend ready", zap.String("backend", cfg.Learning.Backend))
	return backends, nil
}
