package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/api"
	"github.com/ajitpratap0/stratforge/internal/backtest"
	"github.com/ajitpratap0/stratforge/internal/config"
	"github.com/ajitpratap0/stratforge/internal/db"
	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/optimization"
)

// dependencies are the long-lived clients behind the API server
type dependencies struct {
	database   *db.DB
	redis      *redis.Client
	updater    *metrics.Updater
	runs       *backtest.RunManager
	strategies api.StrategyStore
	checks     map[string]api.Pinger

	closeOnce sync.Once
}

// buildDependencies connects the optional database and cache, and wires the
// engine client into the run manager. Without a database, runs and
// strategies live in process memory.
func buildDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{checks: make(map[string]api.Pinger)}

	var store backtest.Store
	if cfg.Database.Enabled {
		database, err := db.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		deps.database = database
		deps.checks["database"] = database

		store = backtest.NewRunStore(database.Pool())
		deps.strategies = db.NewStrategyRepository(database.Pool())

		deps.updater = metrics.NewUpdater(database.Pool(), cfg.Monitoring.UpdateInterval)
		go deps.updater.Start(ctx)
	} else {
		log.Warn().Msg("Database disabled, runs and strategies are kept in memory")
		store = backtest.NewMemoryStore()
		deps.strategies = api.NewMemoryStrategyStore()
	}

	var cache *backtest.MetricsCache
	if cfg.Redis.Enabled {
		deps.redis = redis.NewClient(cfg.Redis.Options())
		deps.checks["redis"] = api.PingerFunc(func(ctx context.Context) error {
			return deps.redis.Ping(ctx).Err()
		})
		cache = backtest.NewMetricsCache(deps.redis, cfg.Redis.TTL)
	}

	engine, err := backtest.NewClient(backtest.ClientConfigFrom(cfg.Backtest))
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create backtest engine client: %w", err)
	}
	deps.checks["engine"] = api.PingerFunc(engine.Health)

	runner := optimization.NewRunner(
		backtest.NewCachedEvaluator(engine, cache),
		cfg.Optimizer.Parallelism,
		cfg.Optimizer.RatePerSecond,
		cfg.Optimizer.Burst,
	)
	deps.runs = backtest.NewRunManager(store, runner, cfg.Optimizer.StoredResults)

	log.Info().
		Bool("database", deps.database != nil).
		Bool("cache", deps.redis != nil).
		Int("parallelism", runner.Parallelism()).
		Str("engine", cfg.Backtest.BaseURL).
		Msg("Dependencies initialized")

	return deps, nil
}

// Close releases every connection; safe to call more than once
func (d *dependencies) Close() {
	d.closeOnce.Do(func() {
		if d.updater != nil {
			d.updater.Stop()
		}
		if d.redis != nil {
			if err := d.redis.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Redis client")
			}
		}
		if d.database != nil {
			d.database.Close()
		}
	})
}
