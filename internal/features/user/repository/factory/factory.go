// Package factory opens the credential store selected by STORE_DRIVER.
package factory

import (
	"context"
	"fmt"

	"lascaux-backend/internal/common/config"
	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/features/user/repository"
	cassandrarepo "lascaux-backend/internal/features/user/repository/cassandra"
	"lascaux-backend/internal/features/user/repository/memory"
	postgresrepo "lascaux-backend/internal/features/user/repository/postgres"
	redisrepo "lascaux-backend/internal/features/user/repository/redis"
	cassandraplatform "lascaux-backend/internal/platform/cassandra"
	postgresplatform "lascaux-backend/internal/platform/postgres"
	redisplatform "lascaux-backend/internal/platform/redis"
)

// Open connects to the configured backend and, with DB_AUTO_MIGRATE set,
// applies its schema. The caller owns the returned store and must Close it.
func Open(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	var (
		store repository.Store
		err   error
	)

	switch cfg.Store.Driver {
	case config.DriverCassandra:
		store, err = openCassandra(ctx, cfg)
	case config.DriverRedis:
		store, err = openRedis(ctx, cfg)
	case config.DriverPostgres:
		store, err = openPostgres(ctx, cfg)
	case config.DriverMemory:
		logger.Warn().Msg("Using in-memory store; data is lost on restart")
		store = memory.New()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	logger.Info().Str("driver", cfg.Store.Driver).Msg("Credential store ready")
	return store, nil
}

func openCassandra(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	client, err := cassandraplatform.NewClient(ctx, cfg, cfg.Store.AutoMigrate)
	if err != nil {
		return nil, err
	}
	return cassandrarepo.New(client), nil
}

func openRedis(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	client, err := redisplatform.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return redisrepo.New(client), nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	client, err := postgresplatform.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Store.AutoMigrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return postgresrepo.New(client), nil
}
