// Package cache keeps computed explanations in a two-tier cache: an
// in-process LRU in front of an optional shared Redis instance.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/explainer"
)

const keyPrefix = "hear:explanation:"

// Config controls both cache tiers.
type Config struct {
	MemorySize int
	MemoryTTL  time.Duration
	RedisTTL   time.Duration
}

// Stats reports cache effectiveness.
type Stats struct {
	MemoryHits   int64  `json:"memory_hits"`
	MemoryMisses int64  `json:"memory_misses"`
	RedisHits    int64  `json:"redis_hits"`
	RedisMisses  int64  `json:"redis_misses"`
	RedisErrors  int64  `json:"redis_errors"`
	BreakerState string `json:"breaker_state"`
}

type memoryEntry struct {
	exp       *explainer.Explanation
	expiresAt time.Time
}

type redisEntry struct {
	Explanation *explainer.Explanation `json:"explanation"`
	CachedAt    time.Time              `json:"cached_at"`
}

// ExplanationCache stores explanations keyed by method, model version and
// input vector. Cached values are shared and must not be mutated.
type ExplanationCache struct {
	memory    *lru.Cache
	memoryTTL time.Duration

	redis    *redis.Client
	redisTTL time.Duration
	breaker  *gobreaker.CircuitBreaker

	logger *logrus.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

// New creates the cache. rdb may be nil for a memory-only cache.
func New(cfg Config, rdb *redis.Client, logger *logrus.Logger) (*ExplanationCache, error) {
	if cfg.MemorySize <= 0 {
		cfg.MemorySize = 512
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = 15 * time.Minute
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = time.Hour
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	memory, err := lru.New(cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	c := &ExplanationCache{
		memory:    memory,
		memoryTTL: cfg.MemoryTTL,
		redis:     rdb,
		redisTTL:  cfg.RedisTTL,
		logger:    logger,
		now:       time.Now,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "explanation-redis",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c, nil
}

// NewRedisClient connects to the Redis instance named by cfg.RedisURL.
func NewRedisClient(ctx context.Context, cfg domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Key derives a stable cache key from the explanation inputs.
func Key(method, modelVersion string, x []float64) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(modelVersion))
	h.Write([]byte{0})
	var buf [8]byte
	for _, v := range x {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get looks the key up in memory, then Redis. Redis failures count as misses.
func (c *ExplanationCache) Get(ctx context.Context, key string) (*explainer.Explanation, bool) {
	if v, ok := c.memory.Get(key); ok {
		entry := v.(memoryEntry)
		if c.now().Before(entry.expiresAt) {
			c.count(func(s *Stats) { s.MemoryHits++ })
			return entry.exp, true
		}
		c.memory.Remove(key)
	}
	c.count(func(s *Stats) { s.MemoryMisses++ })

	if c.redis == nil {
		return nil, false
	}

	exp, err := c.getRedis(ctx, key)
	switch {
	case err != nil:
		c.count(func(s *Stats) { s.RedisErrors++ })
		c.logger.WithError(err).Debug("Redis explanation lookup failed")
		return nil, false
	case exp == nil:
		c.count(func(s *Stats) { s.RedisMisses++ })
		return nil, false
	}

	c.count(func(s *Stats) { s.RedisHits++ })
	c.memory.Add(key, memoryEntry{exp: exp, expiresAt: c.now().Add(c.memoryTTL)})
	return exp, true
}

// Set stores exp in both tiers. A Redis failure is logged, not returned.
func (c *ExplanationCache) Set(ctx context.Context, key string, exp *explainer.Explanation) {
	if exp == nil {
		return
	}
	c.memory.Add(key, memoryEntry{exp: exp, expiresAt: c.now().Add(c.memoryTTL)})

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(redisEntry{Explanation: exp, CachedAt: c.now()})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to encode explanation for cache")
		return
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, key, data, c.redisTTL).Err()
	})
	if err != nil {
		c.count(func(s *Stats) { s.RedisErrors++ })
		c.logger.WithError(err).Debug("Redis explanation store failed")
	}
}

// Purge empties the memory tier.
func (c *ExplanationCache) Purge() {
	c.memory.Purge()
}

// Len returns the number of memory entries.
func (c *ExplanationCache) Len() int {
	return c.memory.Len()
}

// Stats returns a snapshot of the counters.
func (c *ExplanationCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.BreakerState = c.breaker.State().String()
	return s
}

func (c *ExplanationCache) getRedis(ctx context.Context, key string) (*explainer.Explanation, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		val, err := c.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return val, err
	})
	if err != nil || v == nil {
		return nil, err
	}

	var entry redisEntry
	if err := json.Unmarshal(v.([]byte), &entry); err != nil {
		c.redis.Del(ctx, key)
		return nil, nil
	}
	return entry.Explanation, nil
}

func (c *ExplanationCache) count(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}
