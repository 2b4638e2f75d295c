package tracker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/sla-engine/internal/calendar"
	"github.com/kneutral-org/sla-engine/internal/rule"
)

// 2024-01-08 is a Monday, 2024-01-05 a Friday.
func mondayAt(hour, min int) time.Time {
	return time.Date(2024, 1, 8, hour, min, 0, 0, time.UTC)
}

func fridayAt(hour, min int) time.Time {
	return time.Date(2024, 1, 5, hour, min, 0, 0, time.UTC)
}

func testRule() *rule.SLARule {
	return &rule.SLARule{
		ID:            uuid.New(),
		Name:          "standard",
		PriorityOrder: 1,
		MinTATMinutes: 30,
		AvgTATMinutes: 120,
		MaxTATMinutes: 240,
		IsActive:      true,
	}
}

func newTestTracker() *Tracker {
	return NewTracker(calendar.NewResolver(), 0, zerolog.Nop())
}

func TestTracker_Start(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	now := mondayAt(9, 0)

	rec := tr.Start("TKT-1", r, now)

	assert.Equal(t, "TKT-1", rec.TicketID)
	assert.Equal(t, r.ID, rec.SLARuleID)
	assert.Equal(t, StateActive, rec.State)
	assert.Equal(t, StatusOnTrack, rec.Status)
	assert.True(t, now.Equal(rec.StartTime))
	assert.Zero(t, rec.BusinessElapsedMinutes)
}

func TestTracker_RecomputeZones(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	tests := []struct {
		name    string
		minutes int
		want    Status
	}{
		{name: "below avg stays on track", minutes: 119, want: StatusOnTrack},
		{name: "avg enters warning", minutes: 120, want: StatusWarning},
		{name: "just below ratio stays warning", minutes: 215, want: StatusWarning},
		{name: "ratio of max turns critical", minutes: 216, want: StatusCritical},
		{name: "max breaches", minutes: 240, want: StatusBreached},
		{name: "beyond max stays breached", minutes: 400, want: StatusBreached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tr.Start("TKT-1", r, mondayAt(9, 0))
			now := mondayAt(9, tt.minutes)
			if tt.minutes >= 60 {
				now = mondayAt(9+tt.minutes/60, tt.minutes%60)
			}

			require.NoError(t, tr.Recompute(rec, r, sched, nil, now))
			assert.Equal(t, tt.want, rec.Status)
			assert.Equal(t, tt.minutes, rec.BusinessElapsedMinutes)
		})
	}
}

func TestTracker_RecomputeIdempotent(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	rec := tr.Start("TKT-1", r, mondayAt(9, 0))
	now := mondayAt(11, 30)

	require.NoError(t, tr.Recompute(rec, r, sched, nil, now))
	first := *rec

	require.NoError(t, tr.Recompute(rec, r, sched, nil, now))
	assert.Equal(t, first.BusinessElapsedMinutes, rec.BusinessElapsedMinutes)
	assert.Equal(t, first.Status, rec.Status)
}

func TestTracker_RecomputeMonotonic(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	rec := tr.Start("TKT-1", r, mondayAt(9, 0))
	require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(12, 0)))
	assert.Equal(t, 180, rec.BusinessElapsedMinutes)

	// A clock that moves backward must not shrink elapsed time.
	require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(11, 0)))
	assert.Equal(t, 180, rec.BusinessElapsedMinutes)
}

func TestTracker_ZoneNeverMovesBackward(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	rec := tr.Start("TKT-1", r, mondayAt(9, 0))
	require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(11, 30)))
	assert.Equal(t, StatusWarning, rec.Status)

	// Raising the threshold after the fact must not demote the zone.
	relaxed := testRule()
	relaxed.AvgTATMinutes = 300
	relaxed.MaxTATMinutes = 600
	require.NoError(t, tr.Recompute(rec, relaxed, sched, nil, mondayAt(11, 31)))
	assert.Equal(t, StatusWarning, rec.Status)
}

func TestTracker_PauseAndResume(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	rec := tr.Start("TKT-1", r, mondayAt(9, 0))

	require.NoError(t, tr.Pause(rec, r, sched, nil, mondayAt(10, 0)))
	assert.Equal(t, StatePaused, rec.State)
	assert.Equal(t, 60, rec.BusinessElapsedMinutes)
	require.NotNil(t, rec.PauseStartedAt)

	// Elapsed is frozen while paused.
	require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(11, 0)))
	assert.Equal(t, 60, rec.BusinessElapsedMinutes)

	require.NoError(t, tr.Resume(rec, r, sched, nil, mondayAt(12, 0)))
	assert.Equal(t, StateActive, rec.State)
	assert.Nil(t, rec.PauseStartedAt)
	assert.Equal(t, 120, rec.PausedMinutes)
	assert.Equal(t, 120, rec.BusinessPausedMinutes)
	assert.Equal(t, 60, rec.BusinessElapsedMinutes)

	require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(13, 0)))
	assert.Equal(t, 120, rec.BusinessElapsedMinutes)
}

func TestTracker_PauseOverWeekend(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	rec := tr.Start("TKT-1", r, fridayAt(17, 0))

	require.NoError(t, tr.Pause(rec, r, sched, nil, fridayAt(17, 30)))
	assert.Equal(t, 30, rec.BusinessElapsedMinutes)

	require.NoError(t, tr.Resume(rec, r, sched, nil, mondayAt(9, 30)))
	// Wall-clock pause spans the weekend, but only 60 business minutes of
	// it count against elapsed time.
	assert.Equal(t, 60, rec.BusinessPausedMinutes)
	assert.Greater(t, rec.PausedMinutes, rec.BusinessPausedMinutes)

	require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(10, 30)))
	assert.Equal(t, 90, rec.BusinessElapsedMinutes)
}

func TestTracker_PauseEntirelyOutsideBusinessHours(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	rec := tr.Start("TKT-1", r, fridayAt(17, 0))

	require.NoError(t, tr.Pause(rec, r, sched, nil, fridayAt(19, 0)))
	require.NoError(t, tr.Resume(rec, r, sched, nil, fridayAt(21, 0)))

	assert.Equal(t, 120, rec.PausedMinutes)
	assert.Zero(t, rec.BusinessPausedMinutes)

	require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(10, 0)))
	assert.Equal(t, 120, rec.BusinessElapsedMinutes)
}

func TestTracker_TransitionErrors(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	rec := tr.Start("TKT-1", r, mondayAt(9, 0))

	t.Run("resume while active", func(t *testing.T) {
		assert.ErrorIs(t, tr.Resume(rec, r, sched, nil, mondayAt(10, 0)), ErrNotPaused)
	})

	t.Run("double pause", func(t *testing.T) {
		require.NoError(t, tr.Pause(rec, r, sched, nil, mondayAt(10, 0)))
		assert.ErrorIs(t, tr.Pause(rec, r, sched, nil, mondayAt(10, 30)), ErrAlreadyPaused)
		require.NoError(t, tr.Resume(rec, r, sched, nil, mondayAt(10, 30)))
	})

	t.Run("terminal record rejects transitions", func(t *testing.T) {
		require.NoError(t, tr.Resolve(rec, r, sched, nil, mondayAt(11, 0)))
		assert.ErrorIs(t, tr.Pause(rec, r, sched, nil, mondayAt(11, 30)), ErrResolved)
		assert.ErrorIs(t, tr.Resume(rec, r, sched, nil, mondayAt(11, 30)), ErrResolved)
		assert.ErrorIs(t, tr.Resolve(rec, r, sched, nil, mondayAt(11, 30)), ErrResolved)
	})
}

func TestTracker_Resolve(t *testing.T) {
	tr := newTestTracker()
	r := testRule()
	sched := calendar.DefaultSchedule("business hours", "UTC")

	t.Run("freezes final status", func(t *testing.T) {
		rec := tr.Start("TKT-1", r, mondayAt(9, 0))
		require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(11, 30)))

		require.NoError(t, tr.Resolve(rec, r, sched, nil, mondayAt(11, 30)))
		assert.Equal(t, StateResolved, rec.State)
		assert.Equal(t, StatusWarning, rec.FinalStatus)
		require.NotNil(t, rec.ResolvedAt)

		// Recompute after resolution is a strict no-op.
		elapsed := rec.BusinessElapsedMinutes
		require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(17, 0)))
		assert.Equal(t, elapsed, rec.BusinessElapsedMinutes)
		assert.Equal(t, StatusWarning, rec.FinalStatus)
	})

	t.Run("resolving a paused record closes the pause", func(t *testing.T) {
		rec := tr.Start("TKT-2", r, mondayAt(9, 0))
		require.NoError(t, tr.Pause(rec, r, sched, nil, mondayAt(10, 0)))

		require.NoError(t, tr.Resolve(rec, r, sched, nil, mondayAt(12, 0)))
		assert.Equal(t, StateResolved, rec.State)
		assert.Nil(t, rec.PauseStartedAt)
		assert.Equal(t, 120, rec.BusinessPausedMinutes)
		assert.Equal(t, 60, rec.BusinessElapsedMinutes)
		assert.Equal(t, StatusOnTrack, rec.FinalStatus)
	})
}

func TestTracker_WarningRatio(t *testing.T) {
	t.Run("engine default", func(t *testing.T) {
		tr := newTestTracker()
		assert.InDelta(t, DefaultWarningRatio, tr.WarningRatioFor(testRule()), 1e-9)
	})

	t.Run("per-rule override", func(t *testing.T) {
		tr := newTestTracker()
		r := testRule()
		r.WarningRatio = 0.5

		assert.InDelta(t, 0.5, tr.WarningRatioFor(r), 1e-9)

		// avg=120, max=240: with ratio 0.5 everything at or past avg is critical.
		sched := calendar.DefaultSchedule("business hours", "UTC")
		rec := tr.Start("TKT-1", r, mondayAt(9, 0))
		require.NoError(t, tr.Recompute(rec, r, sched, nil, mondayAt(11, 0)))
		assert.Equal(t, StatusCritical, rec.Status)
	})

	t.Run("invalid engine ratio falls back to default", func(t *testing.T) {
		tr := NewTracker(calendar.NewResolver(), 1.7, zerolog.Nop())
		assert.InDelta(t, DefaultWarningRatio, tr.WarningRatioFor(testRule()), 1e-9)
	})
}
