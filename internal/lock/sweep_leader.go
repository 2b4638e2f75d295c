package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SweepLeader runs the lease loop that decides whether this replica drives
// the periodic sweep. The sweeper consults IsLeader before each run; a
// replica whose lease lapses stands down on the next renewal tick and a
// follower takes over within one TTL.
type SweepLeader struct {
	lease  Lease
	logger zerolog.Logger

	leading   atomic.Bool
	renewRate time.Duration

	onPromote func()
	onDemote  func()

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// SweepLeaderOption configures a SweepLeader.
type SweepLeaderOption func(*SweepLeader)

// WithRenewalRate sets how often the loop renews (or re-contends for) the
// lease. Must stay well under the lease TTL or leadership flaps.
func WithRenewalRate(d time.Duration) SweepLeaderOption {
	return func(s *SweepLeader) {
		s.renewRate = d
	}
}

// WithOnPromote registers a callback invoked when this replica takes over
// sweep duty.
func WithOnPromote(fn func()) SweepLeaderOption {
	return func(s *SweepLeader) {
		s.onPromote = fn
	}
}

// WithOnDemote registers a callback invoked when this replica stops being
// the sweeper.
func WithOnDemote(fn func()) SweepLeaderOption {
	return func(s *SweepLeader) {
		s.onDemote = fn
	}
}

// NewSweepLeader creates the leader loop over the given lease. The renewal
// rate defaults to a third of the lease TTL when the lease exposes one, so
// a leader gets two more renewal attempts before its claim expires.
func NewSweepLeader(lease Lease, logger zerolog.Logger, opts ...SweepLeaderOption) *SweepLeader {
	s := &SweepLeader{
		lease:     lease,
		logger:    logger.With().Str("component", "sweep-leader").Logger(),
		renewRate: DefaultLeaseTTL / 3,
		stopCh:    make(chan struct{}),
	}
	if withTTL, ok := lease.(interface{ TTL() time.Duration }); ok {
		if ttl := withTTL.TTL(); ttl > 0 {
			s.renewRate = ttl / 3
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the lease loop. It contends immediately, then on every
// renewal tick until Stop or context cancellation.
func (s *SweepLeader) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts the loop and releases the lease if held, letting another
// replica pick up sweep duty without waiting out the TTL.
func (s *SweepLeader) Stop(ctx context.Context) {
	close(s.stopCh)
	s.wg.Wait()

	if !s.leading.Load() {
		return
	}
	if err := s.lease.Release(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to release sweep lease on shutdown")
	} else {
		s.logger.Info().Msg("sweep leadership released on shutdown")
	}
	s.demote()
}

// IsLeader reports whether this replica currently drives the sweep.
func (s *SweepLeader) IsLeader() bool {
	return s.leading.Load()
}

func (s *SweepLeader) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.renewRate)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *SweepLeader) tick(ctx context.Context) {
	if !s.leading.Load() {
		s.claim(ctx)
		return
	}

	if err := s.lease.Renew(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("sweep lease renewal failed, standing down")
		s.demote()
		// The lease may simply have expired; contend again right away.
		s.claim(ctx)
		return
	}
	s.logger.Debug().Msg("sweep lease renewed")
}

func (s *SweepLeader) claim(ctx context.Context) {
	ok, err := s.lease.Acquire(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep lease acquisition failed")
		return
	}
	if !ok {
		s.logger.Debug().Msg("sweep leadership held by another replica")
		return
	}

	s.leading.Store(true)
	s.logger.Info().Msg("sweep leadership acquired")
	if s.onPromote != nil {
		s.onPromote()
	}
}

func (s *SweepLeader) demote() {
	s.leading.Store(false)
	if s.onDemote != nil {
		s.onDemote()
	}
}
