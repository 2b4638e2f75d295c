package lock

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compare-and-mutate scripts keyed on the holder ID, so a replica whose
// lease expired and was claimed by another can never renew or delete the
// new holder's key.
var (
	renewScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)

	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
)

// RedisLease implements Lease over a single Redis key. SET NX claims the
// key for SweepLeaderKey's TTL; renewal and release go through the
// compare-and-mutate scripts above.
type RedisLease struct {
	client   *redis.Client
	key      string
	holderID string
	ttl      time.Duration

	mu   sync.Mutex
	held bool
}

// LeaseOption configures a RedisLease.
type LeaseOption func(*RedisLease)

// WithKey overrides the lease key. Useful when several engines share one
// Redis and must not contend on the same sweep lease.
func WithKey(key string) LeaseOption {
	return func(l *RedisLease) {
		l.key = key
	}
}

// WithTTL overrides the lease TTL.
func WithTTL(ttl time.Duration) LeaseOption {
	return func(l *RedisLease) {
		l.ttl = ttl
	}
}

// WithHolderID overrides the value stored under the lease key. It must be
// unique per replica; the default derives from hostname and PID.
func WithHolderID(id string) LeaseOption {
	return func(l *RedisLease) {
		l.holderID = id
	}
}

// NewRedisLease creates a sweep lease on SweepLeaderKey with
// DefaultLeaseTTL. Options adjust the key, TTL, and holder identity.
func NewRedisLease(client *redis.Client, opts ...LeaseOption) *RedisLease {
	l := &RedisLease{
		client:   client,
		key:      SweepLeaderKey,
		ttl:      DefaultLeaseTTL,
		holderID: defaultHolderID(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// defaultHolderID identifies this replica in the lease key, so operators
// can see which instance is sweeping with a plain GET.
func defaultHolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Acquire claims the lease via SET NX with expiry.
func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.holderID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
	}
	return ok, nil
}

// Renew pushes the expiry out by the TTL if this replica still owns the
// key. A failed renewal marks the lease lost locally.
func (l *RedisLease) Renew(ctx context.Context) error {
	if !l.Held() {
		return ErrLeaseLost
	}

	renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.holderID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renew sweep lease: %w", err)
	}
	if renewed == 0 {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
		return ErrLeaseLost
	}
	return nil
}

// Release deletes the key if this replica owns it. A key already expired
// or claimed by another replica is left alone.
func (l *RedisLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.holderID).Int64(); err != nil {
		return fmt.Errorf("release sweep lease: %w", err)
	}
	l.held = false
	return nil
}

// Held reports the local view of lease ownership.
func (l *RedisLease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Key returns the lease's Redis key.
func (l *RedisLease) Key() string {
	return l.key
}

// TTL returns the lease duration.
func (l *RedisLease) TTL() time.Duration {
	return l.ttl
}

var _ Lease = (*RedisLease)(nil)
