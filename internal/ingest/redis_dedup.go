package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper is a Redis implementation of Deduper, shared across engine
// instances so redeliveries are suppressed no matter which instance receives
// them.
type RedisDeduper struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisDeduper.
type RedisOption func(*RedisDeduper)

// WithKeyPrefix sets a prefix for all event keys in Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(d *RedisDeduper) {
		d.prefix = prefix
	}
}

// NewRedisDeduper creates a new Redis-backed deduper.
func NewRedisDeduper(client *redis.Client, opts ...RedisOption) *RedisDeduper {
	d := &RedisDeduper{
		client: client,
		prefix: "sla-engine:event:",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CheckAndSet implements Deduper.CheckAndSet using SET NX with expiration for
// an atomic check-and-set.
func (d *RedisDeduper) CheckAndSet(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	wasSet, err := d.client.SetNX(ctx, d.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return wasSet, nil
}

// Delete implements Deduper.Delete for Redis storage.
func (d *RedisDeduper) Delete(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+key).Err()
}

// Ping checks if the Redis connection is healthy.
func (d *RedisDeduper) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
