package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vzcourier/vzcourier-backend/internal/platform/cache"
	"github.com/vzcourier/vzcourier-backend/internal/platform/db"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
)

// Deps holds the connections shared by the API server, the worker and the CLI.
type Deps struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	PriceSheets *pricesheet.Service
	Cache       *pricesheet.Cache
	logger      *slog.Logger
}

// Open connects to PostgreSQL and Redis, applies migrations when enabled
// and builds the price sheet service. A Redis outage disables caching
// instead of failing startup.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Deps, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, price sheet cache disabled", slog.Any("error", err))
	}

	priceCache := pricesheet.NewCache(redisClient, cfg.CacheTTL)
	svc := pricesheet.NewService(
		pricesheet.NewRepository(pool),
		priceCache,
		logger,
		pricesheet.WithCurrency(cfg.DefaultCurrency),
	)
	return &Deps{Pool: pool, Redis: redisClient, PriceSheets: svc, Cache: priceCache, logger: logger}, nil
}

// Close releases every connection.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// Checks returns health probes for the open connections.
func (d *Deps) Checks() map[string]HealthChecker {
	checks := map[string]HealthChecker{
		"postgres": func(r *http.Request) error { return d.Pool.Ping(r.Context()) },
	}
	if d.Redis != nil {
		checks["redis"] = func(r *http.Request) error { return d.Redis.Ping(r.Context()).Err() }
	}
	return checks
}

// NewPriceSheetService opens dependencies for one-shot commands.
func NewPriceSheetService(ctx context.Context, cfg *Config, logger *slog.Logger) (*pricesheet.Service, func(), error) {
	deps, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return deps.PriceSheets, deps.Close, nil
}
