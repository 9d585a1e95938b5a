package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/atrium/pkg/observability"
)

// Backend stores permission snapshots keyed by user id
type Backend interface {
	// Get returns the cached snapshot; ok is false on a miss
	Get(ctx context.Context, userID string) (snap *Snapshot, ok bool, err error)
	Set(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, userIDs ...string) error
	// Name labels metrics
	Name() string
}

// CacheConfig sizes the permission cache
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.Size <= 0 {
		c.Size = 10000
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	return c
}

// MemoryBackend is an in-process LRU with per-entry expiry
type MemoryBackend struct {
	cache *lru.LRU[string, *Snapshot]
}

// NewMemoryBackend creates an LRU backend
func NewMemoryBackend(cfg CacheConfig) *MemoryBackend {
	cfg = cfg.withDefaults()
	return &MemoryBackend{cache: lru.NewLRU[string, *Snapshot](cfg.Size, nil, cfg.TTL)}
}

func (b *MemoryBackend) Get(_ context.Context, userID string) (*Snapshot, bool, error) {
	snap, ok := b.cache.Get(userID)
	return snap, ok, nil
}

func (b *MemoryBackend) Set(_ context.Context, snap *Snapshot) error {
	b.cache.Add(snap.UserID, snap)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, userIDs ...string) error {
	for _, id := range userIDs {
		b.cache.Remove(id)
	}
	return nil
}

func (b *MemoryBackend) Name() string { return "memory" }

// Len reports the number of live entries
func (b *MemoryBackend) Len() int { return b.cache.Len() }

// RedisBackend shares snapshots between replicas. Entries written by another replica
// before an invalidation can outlive it by at most TTL.
type RedisBackend struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewRedisBackend creates a Redis backend; keys are prefix+userID
func NewRedisBackend(client *redis.Client, prefix string, cfg CacheConfig, metrics *observability.Metrics) *RedisBackend {
	cfg = cfg.withDefaults()
	return &RedisBackend{client: client, prefix: prefix, ttl: cfg.TTL, metrics: metrics}
}

func (b *RedisBackend) key(userID string) string { return b.prefix + userID }

func (b *RedisBackend) Get(ctx context.Context, userID string) (*Snapshot, bool, error) {
	data, err := b.client.Get(ctx, b.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		b.metrics.RecordRedisCommand("get", nil)
		return nil, false, nil
	}
	b.metrics.RecordRedisCommand("get", err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read permission cache: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode permission cache entry: %w", err)
	}
	return &snap, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode permission cache entry: %w", err)
	}
	err = b.client.Set(ctx, b.key(snap.UserID), data, b.ttl).Err()
	b.metrics.RecordRedisCommand("set", err)
	if err != nil {
		return fmt.Errorf("failed to write permission cache: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = b.key(id)
	}
	err := b.client.Del(ctx, keys...).Err()
	b.metrics.RecordRedisCommand("del", err)
	if err != nil {
		return fmt.Errorf("failed to invalidate permission cache: %w", err)
	}
	return nil
}

func (b *RedisBackend) Name() string { return "redis" }

// Cache serves permission snapshots for clients. Concurrent misses for one user share a
// single load, and a load that overlaps an invalidation is returned but never stored.
type Cache struct {
	resolver *Resolver
	backend  Backend
	group    singleflight.Group
	// generation advances on every invalidation
	generation atomic.Uint64
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
}

// NewCache creates a cache over backend. A nil backend gets a default MemoryBackend.
func NewCache(resolver *Resolver, backend Backend, logger logrus.FieldLogger, metrics *observability.Metrics) *Cache {
	if backend == nil {
		backend = NewMemoryBackend(CacheConfig{})
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{resolver: resolver, backend: backend, logger: logger, metrics: metrics}
}

// Snapshot returns the user's permissions in every workspace, loading on a miss.
// Backend read failures fall through to the database.
func (c *Cache) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	snap, ok, err := c.backend.Get(ctx, userID)
	if err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("Permission cache read failed")
	}
	if ok {
		c.metrics.RecordCacheLookup(c.backend.Name(), true)
		return snap, nil
	}
	c.metrics.RecordCacheLookup(c.backend.Name(), false)

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		gen := c.generation.Load()
		snap, err := c.resolver.EffectivePermissionsByWorkspace(ctx, userID)
		if err != nil {
			return nil, err
		}
		c.store(ctx, gen, snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// store writes snap unless an invalidation began after gen was read. An invalidation that
// lands while Set is in flight is caught by the second check and the entry is dropped.
func (c *Cache) store(ctx context.Context, gen uint64, snap *Snapshot) {
	if c.generation.Load() != gen {
		return
	}
	if err := c.backend.Set(ctx, snap); err != nil {
		c.logger.WithError(err).WithField("user_id", snap.UserID).Warn("Permission cache write failed")
		return
	}
	if c.generation.Load() != gen {
		if err := c.backend.Delete(ctx, snap.UserID); err != nil {
			c.logger.WithError(err).WithField("user_id", snap.UserID).Error("Permission cache invalidation failed")
		}
	}
}

// RedirectTarget resolves the landing workspace from the user's cached snapshot
func (c *Cache) RedirectTarget(ctx context.Context, userID, current string) (string, bool, error) {
	snap, err := c.Snapshot(ctx, userID)
	if err != nil {
		return "", false, err
	}
	id, ok := RedirectTarget(snap, current)
	return id, ok, nil
}

// Invalidate drops every cached entry for userIDs. Subsequent reads reload from the database.
func (c *Cache) Invalidate(ctx context.Context, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	c.generation.Add(1)
	for _, id := range userIDs {
		c.group.Forget(id)
	}
	if err := c.backend.Delete(ctx, userIDs...); err != nil {
		c.logger.WithError(err).WithField("user_ids", userIDs).Error("Permission cache invalidation failed")
	}
	c.metrics.RecordCacheInvalidation(c.backend.Name())
}
