package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-stock/internal/events"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/observability"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/locks"
	"github.com/odyssey-erp/odyssey-stock/internal/serials"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/stockcount"
	"github.com/odyssey-erp/odyssey-stock/internal/warehouses"
	"github.com/odyssey-erp/odyssey-stock/jobs"
)

// Container owns the connections and services shared by the binaries.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Queue   *jobs.Client

	Publisher   events.Publisher
	Idempotency *shared.IdempotencyStore
	Locker      *locks.Locker

	Inventory   *inventory.Service
	Valuator    *inventory.CachedValuator
	Reorder     *inventory.ReorderAnalyzer
	StockCounts *stockcount.Service
	Serials     *serials.Service
	Warehouses  *warehouses.Service
}

// NewContainer connects to Postgres and Redis and wires every service.
// Outbound events go to the Redis channel, the valuation cache invalidator
// and the reorder notification queue.
func NewContainer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		pool.Close()
		return nil, err
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: observability.NewMetrics(),
		Queue:   jobs.NewClient(cfg.RedisOptions().Queue()),
	}

	valuations := cache.NewVersioned(redisClient, "valuation", cfg.ValuationCacheTTL)
	c.Publisher = events.Fanout{
		events.NewRedisPublisher(redisClient, cfg.EventsChannel),
		inventory.NewCacheInvalidator(valuations),
		jobs.NewQueuePublisher(c.Queue),
	}
	c.Idempotency = shared.NewIdempotencyStore(pool)
	c.Locker = locks.New(redisClient, cfg.LockTTL).WithLogger(logger)

	invCfg := cfg.InventoryConfig()
	invRepo := inventory.NewRepository(pool)
	c.Inventory = inventory.NewService(invRepo, shared.NewAuditLogger(pool), c.Idempotency, invCfg, c.Publisher).
		WithLogger(logger).
		WithMetrics(inventory.NewMetrics(c.Metrics.Registerer()))
	c.Valuator = inventory.NewCachedValuator(
		inventory.NewValuator(invRepo, c.Publisher, invCfg).WithLogger(logger),
		valuations,
	)
	c.Reorder = inventory.NewReorderAnalyzer(invRepo)

	countRepo := stockcount.NewRepository(pool)
	c.StockCounts = stockcount.NewService(countRepo, countRepo, c.Inventory, c.Inventory, cfg.StockCountConfig(), c.Publisher).
		WithLocker(c.Locker).
		WithLogger(logger)
	c.Serials = serials.NewService(serials.NewRepository(pool), c.Publisher).WithLogger(logger)
	c.Warehouses = warehouses.NewService(warehouses.NewRepository(pool))
	return c, nil
}

// HealthChecks pings the backing stores for readiness reporting.
func (c *Container) HealthChecks() map[string]HealthCheck {
	return map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return c.Pool.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return cache.Ping(ctx, c.Redis) },
	}
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			c.Logger.Warn("queue close", slog.Any("error", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
