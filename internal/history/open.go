package history

import (
	"context"
	"fmt"
	"log/slog"

	"vconv/internal/config"
	"vconv/internal/services"
)

// OpenFallback opens the configured flat backend.
func OpenFallback(ctx context.Context, cfg *config.Config) (*FallbackStore, error) {
	var (
		backend FlatBackend
		err     error
	)
	switch cfg.History.Fallback {
	case "redis":
		backend, err = OpenRedis(ctx, RedisOptions{
			Addr:     cfg.History.RedisAddr,
			Password: cfg.History.RedisPassword,
			DB:       cfg.History.RedisDB,
			Key:      cfg.History.RedisKey,
		})
	default:
		backend, err = OpenPebble(cfg.FallbackPath())
	}
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "history", "open fallback", "fallback history store unavailable", err)
	}
	return NewFallbackStore(backend, cfg.History.FallbackLimit), nil
}

// Open builds the tiered store described by cfg. The fallback tier is opened
// immediately; the primary tier is opened on first use.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, materializer Materializer) (*TieredStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("history: config required")
	}
	fallback, err := OpenFallback(ctx, cfg)
	if err != nil {
		return nil, err
	}
	driver := cfg.History.Driver
	dsn := cfg.HistoryDSN()
	opener := func(ctx context.Context) (PrimaryStore, error) {
		return OpenSQL(ctx, driver, dsn)
	}
	return NewTieredStore(opener, fallback, materializer, logger), nil
}
