// Package lock coordinates the periodic recompute sweep across SLA engine
// replicas. Every replica runs the cron schedule, but only the one holding
// the sweep lease recomputes records and fires escalations, so scaling the
// engine out does not double-fire escalation notifications.
package lock

import (
	"context"
	"errors"
	"time"
)

const (
	// SweepLeaderKey is the Redis key replicas contend on for sweep duty.
	SweepLeaderKey = "sla-engine:sweep-leader"

	// DefaultLeaseTTL bounds how long a crashed leader blocks the sweep
	// before its lease expires and another replica takes over.
	DefaultLeaseTTL = 60 * time.Second
)

// ErrLeaseLost is returned when renewing a lease this replica no longer
// holds, either because it expired or another replica claimed the key.
var ErrLeaseLost = errors.New("sweep lease lost")

// Lease is a renewable exclusive claim on sweep duty. Implementations must
// be safe for concurrent use.
type Lease interface {
	// Acquire attempts to claim the lease. It returns false without error
	// when another replica already holds it.
	Acquire(ctx context.Context) (bool, error)

	// Renew pushes the lease expiry out by its TTL. Returns ErrLeaseLost
	// when the claim no longer belongs to this replica.
	Renew(ctx context.Context) error

	// Release gives the lease up. Safe to call when not held.
	Release(ctx context.Context) error

	// Held reports whether this replica believes it holds the lease. The
	// claim may still have expired server-side; Renew is the authority.
	Held() bool
}
