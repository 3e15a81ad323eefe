package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"loanconnect/internal/cache"
	"loanconnect/internal/config"
	"loanconnect/internal/db"
	"loanconnect/internal/repository"
)

// Open builds the storage backend selected by cfg.Storage.Driver.
// The returned close function releases any connections; it is never nil.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Storage, func(), error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory client state; nothing survives a restart")
		return NewMemory(), func() {}, nil

	case "file", "":
		fs, err := NewFile(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using file client state", zap.String("dir", cfg.Storage.Dir))
		return fs, func() {}, nil

	case "redis":
		client, err := cache.NewClient(ctx, cfg.Redis.URL, cache.WithTTL(cfg.Redis.StateTTL))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("using redis client state")
		return client, client.Close, nil

	case "postgres":
		database, err := db.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("using postgres client state")
		return repository.NewStateRepository(database), database.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
