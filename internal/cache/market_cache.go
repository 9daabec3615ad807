// Package cache provides Redis-backed storage for the last good price map and
// the latest ledger snapshot. When Redis is unavailable every operation falls
// back to process memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mohameddodda/paper-trading-bot/config"
)

// Keys
const (
	KeyLastPrices     = "paper:prices:last"
	KeyLedgerSnapshot = "paper:ledger:snapshot"
)

// ErrDegraded reports that Redis is unreachable and memory is in use
var ErrDegraded = errors.New("redis unavailable, cache degraded to memory")

// MarketCache stores prices and snapshots with graceful degradation
type MarketCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	maxFailures  int
	memory       map[string][]byte
}

// NewMarketCache connects to Redis when enabled. A failed initial ping
// leaves the cache in degraded (memory only) mode rather than failing.
func NewMarketCache(cfg config.RedisConfig, logger zerolog.Logger) *MarketCache {
	mc := &MarketCache{
		ttl:         time.Duration(cfg.SnapshotTTLSeconds) * time.Second,
		logger:      logger.With().Str("component", "MarketCache").Logger(),
		maxFailures: 3,
		memory:      make(map[string][]byte),
	}
	if !cfg.Enabled {
		mc.logger.Info().Msg("Redis disabled, using in-memory cache")
		return mc
	}

	mc.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.client.Ping(ctx).Err(); err != nil {
		mc.logger.Warn().Err(err).Str("address", cfg.Address).Msg("Initial Redis connection failed, running degraded")
		return mc
	}

	mc.healthy = true
	mc.logger.Info().Str("address", cfg.Address).Msg("Redis connected")
	return mc
}

// NewMemoryCache returns a cache that never touches Redis
func NewMemoryCache() *MarketCache {
	return &MarketCache{
		logger:      zerolog.Nop(),
		maxFailures: 3,
		memory:      make(map[string][]byte),
	}
}

// IsHealthy returns whether Redis is currently in use
func (mc *MarketCache) IsHealthy() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.client != nil && mc.healthy
}

// Close releases the Redis connection pool
func (mc *MarketCache) Close() error {
	if mc.client == nil {
		return nil
	}
	return mc.client.Close()
}

// SavePrices stores the last good price map
func (mc *MarketCache) SavePrices(ctx context.Context, prices map[string]float64) error {
	return mc.set(ctx, KeyLastPrices, prices, 0)
}

// LoadPrices loads the last good price map
func (mc *MarketCache) LoadPrices(ctx context.Context) (map[string]float64, error) {
	var prices map[string]float64
	if err := mc.get(ctx, KeyLastPrices, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// SaveSnapshot stores any JSON-serializable ledger snapshot
func (mc *MarketCache) SaveSnapshot(ctx context.Context, snapshot interface{}) error {
	return mc.set(ctx, KeyLedgerSnapshot, snapshot, mc.ttl)
}

// LoadSnapshot decodes the latest snapshot into out
func (mc *MarketCache) LoadSnapshot(ctx context.Context, out interface{}) error {
	return mc.get(ctx, KeyLedgerSnapshot, out)
}

func (mc *MarketCache) set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	mc.mu.Lock()
	mc.memory[key] = data
	mc.mu.Unlock()

	if !mc.IsHealthy() {
		return nil
	}

	if err := mc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		mc.recordFailure(err)
		return nil
	}
	mc.recordSuccess()
	return nil
}

func (mc *MarketCache) get(ctx context.Context, key string, out interface{}) error {
	var data []byte

	if mc.IsHealthy() {
		raw, err := mc.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			mc.recordSuccess()
			data = raw
		case err == redis.Nil:
			mc.recordSuccess()
		default:
			mc.recordFailure(err)
		}
	}

	if data == nil {
		mc.mu.RLock()
		data = mc.memory[key]
		mc.mu.RUnlock()
	}
	if data == nil {
		return fmt.Errorf("cache miss: %s", key)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (mc *MarketCache) recordFailure(err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.failureCount++
	mc.logger.Warn().Err(err).Int("failures", mc.failureCount).Msg("Redis operation failed")
	if mc.failureCount >= mc.maxFailures && mc.healthy {
		mc.logger.Error().Msg("Redis marked unhealthy, serving from memory")
		mc.healthy = false
	}
}

func (mc *MarketCache) recordSuccess() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.failureCount = 0
}
