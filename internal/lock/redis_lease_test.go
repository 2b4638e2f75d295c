package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// testRedisClient returns a client against a local Redis, skipping the
// test when none is running.
func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background())
		_ = client.Close()
	})

	return client
}

func TestRedisLease_Defaults(t *testing.T) {
	lease := NewRedisLease(nil)

	if lease.Key() != SweepLeaderKey {
		t.Errorf("expected default key %q, got %q", SweepLeaderKey, lease.Key())
	}
	if lease.TTL() != DefaultLeaseTTL {
		t.Errorf("expected default TTL %v, got %v", DefaultLeaseTTL, lease.TTL())
	}
	if lease.holderID == "" {
		t.Error("expected a non-empty holder ID")
	}
}

func TestRedisLease_Options(t *testing.T) {
	lease := NewRedisLease(nil,
		WithKey("staging:sweep-leader"),
		WithTTL(30*time.Second),
		WithHolderID("replica-a"),
	)

	if lease.Key() != "staging:sweep-leader" {
		t.Errorf("unexpected key %q", lease.Key())
	}
	if lease.TTL() != 30*time.Second {
		t.Errorf("unexpected TTL %v", lease.TTL())
	}
	if lease.holderID != "replica-a" {
		t.Errorf("unexpected holder ID %q", lease.holderID)
	}
}

func TestRedisLease_SingleSweeper(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()

	first := NewRedisLease(client, WithHolderID("replica-a"))
	second := NewRedisLease(client, WithHolderID("replica-b"))

	acquired, err := first.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !acquired || !first.Held() {
		t.Fatal("expected the first replica to claim sweep duty")
	}

	// Both replicas contend on SweepLeaderKey; the second must lose.
	acquired, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if acquired || second.Held() {
		t.Error("expected the second replica to stay a follower")
	}
}

func TestRedisLease_ReleaseHandsOver(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()

	first := NewRedisLease(client, WithHolderID("replica-a"))
	if acquired, err := first.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("failed to claim lease: %v", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if first.Held() {
		t.Error("expected Held to report false after release")
	}

	second := NewRedisLease(client, WithHolderID("replica-b"))
	acquired, err := second.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if !acquired {
		t.Error("expected a follower to take over after release")
	}
}

func TestRedisLease_ReleaseLeavesOtherHolderAlone(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()

	leader := NewRedisLease(client, WithHolderID("replica-a"))
	follower := NewRedisLease(client, WithHolderID("replica-b"))

	if acquired, _ := leader.Acquire(ctx); !acquired {
		t.Fatal("failed to claim lease")
	}

	// The follower never held the lease; Release must be a no-op.
	if err := follower.Release(ctx); err != nil {
		t.Fatalf("Release should not error: %v", err)
	}
	if !leader.Held() {
		t.Error("expected the leader to keep the lease")
	}

	holder, err := client.Get(ctx, SweepLeaderKey).Result()
	if err != nil {
		t.Fatalf("failed to read lease key: %v", err)
	}
	if holder != "replica-a" {
		t.Errorf("expected holder replica-a, got %q", holder)
	}
}

func TestRedisLease_RenewRefreshesTTL(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()

	lease := NewRedisLease(client, WithTTL(5*time.Second))
	if acquired, err := lease.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("failed to claim lease: %v", err)
	}

	time.Sleep(1 * time.Second)

	if err := lease.Renew(ctx); err != nil {
		t.Fatalf("Renew failed: %v", err)
	}

	ttl, err := client.PTTL(ctx, SweepLeaderKey).Result()
	if err != nil {
		t.Fatalf("failed to read TTL: %v", err)
	}
	if ttl < 4*time.Second {
		t.Errorf("expected TTL above 4s after renewal, got %v", ttl)
	}
}

func TestRedisLease_RenewWithoutClaim(t *testing.T) {
	client := testRedisClient(t)

	lease := NewRedisLease(client)
	if err := lease.Renew(context.Background()); err != ErrLeaseLost {
		t.Errorf("expected ErrLeaseLost, got %v", err)
	}
}

func TestRedisLease_RenewAfterTakeover(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()

	lease := NewRedisLease(client, WithHolderID("replica-a"), WithTTL(100*time.Millisecond))
	if acquired, err := lease.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("failed to claim lease: %v", err)
	}

	// Let the claim expire and hand the key to another replica.
	time.Sleep(200 * time.Millisecond)
	usurper := NewRedisLease(client, WithHolderID("replica-b"), WithTTL(10*time.Second))
	if acquired, err := usurper.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("takeover failed: %v", err)
	}

	if err := lease.Renew(ctx); err != ErrLeaseLost {
		t.Errorf("expected ErrLeaseLost after takeover, got %v", err)
	}
	if lease.Held() {
		t.Error("expected the old leader to mark its lease lost")
	}
}

func TestRedisLease_ExpiryHandsOver(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()

	lease := NewRedisLease(client, WithTTL(100*time.Millisecond))
	if acquired, err := lease.Acquire(ctx); err != nil || !acquired {
		t.Fatalf("failed to claim lease: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	next := NewRedisLease(client, WithHolderID("replica-b"))
	acquired, err := next.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after expiry failed: %v", err)
	}
	if !acquired {
		t.Error("expected a follower to take over once the lease expired")
	}
}

func TestRedisLease_ConcurrentClaims(t *testing.T) {
	client := testRedisClient(t)
	ctx := context.Background()

	const replicas = 10
	claims := make(chan bool, replicas)

	for i := 0; i < replicas; i++ {
		go func(id int) {
			lease := NewRedisLease(client, WithHolderID(fmt.Sprintf("replica-%d", id)))
			ok, _ := lease.Acquire(ctx)
			claims <- ok
		}(i)
	}

	winners := 0
	for i := 0; i < replicas; i++ {
		if <-claims {
			winners++
		}
	}

	if winners != 1 {
		t.Errorf("expected exactly one replica to win the lease, got %d", winners)
	}
}

func TestSweepLeader_RenewalRateDerivedFromRedisLease(t *testing.T) {
	lease := NewRedisLease(nil, WithTTL(30*time.Second))
	leader := NewSweepLeader(lease, zerolog.Nop())

	if leader.renewRate != 10*time.Second {
		t.Errorf("expected renewal rate 10s for a 30s TTL, got %v", leader.renewRate)
	}
}
