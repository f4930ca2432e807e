package backtest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

const (
	// DefaultCacheTTL keeps engine metrics for a day
	DefaultCacheTTL = 24 * time.Hour

	cacheKeyPrefix = "stratforge:backtest:"
)

// MetricsCache stores engine metrics in Redis keyed by a content hash of the
// concrete strategy and run config. A nil *MetricsCache is valid and never
// hits.
type MetricsCache struct {
	redis *metrics.RedisMetrics
	ttl   time.Duration
}

// NewMetricsCache creates a cache; ttl <= 0 uses DefaultCacheTTL
func NewMetricsCache(client *redis.Client, ttl time.Duration) *MetricsCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MetricsCache{redis: metrics.NewRedisMetrics(client), ttl: ttl}
}

// Key returns the cache key for a concrete strategy and run config. Metadata
// other than the schema version does not contribute.
func Key(s *strategy.Strategy, run optimization.RunConfig) (string, error) {
	doc := s.DeepCopy()
	doc.Metadata = strategy.Metadata{SchemaVersion: s.Metadata.SchemaVersion}

	data, err := json.Marshal(Request{Strategy: doc, Run: run})
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}
	sum := sha256.Sum256(data)
	return cacheKeyPrefix + hex.EncodeToString(sum[:]), nil
}

// Get returns cached metrics. A miss returns (nil, false, nil).
func (c *MetricsCache) Get(ctx context.Context, key string) (*optimization.Metrics, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	data, err := c.redis.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		metrics.RecordBacktestCacheLookup(false)
		log.Debug().Str("key", key).Msg("Backtest cache miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read backtest cache: %w", err)
	}

	var m optimization.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached metrics: %w", err)
	}
	metrics.RecordBacktestCacheLookup(true)
	log.Debug().Str("key", key).Msg("Backtest cache hit")
	return &m, true, nil
}

// Set stores metrics under key
func (c *MetricsCache) Set(ctx context.Context, key string, m *optimization.Metrics) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.ttl)
}

// Invalidate removes cached entries
func (c *MetricsCache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// HitRate returns the hit ratio observed by this cache
func (c *MetricsCache) HitRate() float64 {
	if c == nil {
		return 0
	}
	return c.redis.HitRate()
}

// CachedEvaluator consults the cache before calling the wrapped evaluator.
// Cache failures are logged and never fail an evaluation.
type CachedEvaluator struct {
	next  optimization.Evaluator
	cache *MetricsCache
}

// NewCachedEvaluator wraps next with cache; a nil cache passes through
func NewCachedEvaluator(next optimization.Evaluator, cache *MetricsCache) *CachedEvaluator {
	return &CachedEvaluator{next: next, cache: cache}
}

// Evaluate implements optimization.Evaluator
func (e *CachedEvaluator) Evaluate(ctx context.Context, s *strategy.Strategy, run optimization.RunConfig) (*optimization.Metrics, error) {
	if e.cache == nil {
		return e.next.Evaluate(ctx, s, run)
	}

	key, err := Key(s, run)
	if err != nil {
		return nil, err
	}
	if m, ok, err := e.cache.Get(ctx, key); err != nil {
		log.Warn().Err(err).Msg("Backtest cache read failed")
	} else if ok {
		return m, nil
	}

	m, err := e.next.Evaluate(ctx, s, run)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, key, m); err != nil {
		log.Warn().Err(err).Msg("Backtest cache write failed")
	}
	return m, nil
}
