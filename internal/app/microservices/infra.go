package microservices

import (
	"context"
	"fmt"

	"github.com/Temutjin2k/taxi-dispatch/config"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/migrations"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/postgres"
	"github.com/Temutjin2k/taxi-dispatch/pkg/redis"
)

// openPostgres connects to the database and applies pending migrations when enabled
func openPostgres(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*postgres.PostgreDB, error) {
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	if !cfg.Migrate {
		return db, nil
	}

	applied, err := migrations.Apply(ctx, db.Pool)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if len(applied) > 0 {
		log.Info(wrap.WithAction(ctx, types.ActionMigrationsApplied), "migrations applied", "files", applied)
	}
	return db, nil
}

// openRedis returns nil when redis is disabled
func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	rdb, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup redis: %w", err)
	}
	return rdb, nil
}
