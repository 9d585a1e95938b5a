package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the lease key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a time-bounded exclusive claim on a named job
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Leaser hands out leases so a job runs on one replica at a time
type Leaser interface {
	// Acquire returns nil without error when another holder owns the lease
	Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error)
}

// RedisLeaser implements Leaser with SET NX PX
type RedisLeaser struct {
	client *redis.Client
	prefix string
}

// NewRedisLeaser creates a leaser whose keys live under prefix
func NewRedisLeaser(client *redis.Client, prefix string) *RedisLeaser {
	return &RedisLeaser{client: client, prefix: prefix}
}

// Acquire claims name for ttl
func (l *RedisLeaser) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Release gives the lease up early. Releasing an expired or stolen lease is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// LocalLeaser always grants the lease; for single-replica deployments without Redis
type LocalLeaser struct{}

// Acquire always succeeds
func (LocalLeaser) Acquire(context.Context, string, time.Duration) (*Lease, error) {
	return &Lease{}, nil
}
