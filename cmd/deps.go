package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/newscat/internal/cache"
	"github.com/sells-group/newscat/internal/config"
	"github.com/sells-group/newscat/internal/feedback"
)

// openStore creates the feedback store for the configured driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (feedback.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return feedback.NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns, cfg.MinConns)
	case "sqlite":
		return feedback.NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// openCache creates the prediction cache for the configured driver.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Driver {
	case "redis":
		return cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisDB), nil
	case "memory":
		return cache.NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
