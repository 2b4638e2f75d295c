package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/sla-engine/internal/calendar"
	"github.com/kneutral-org/sla-engine/internal/rule"
)

// DefaultWarningRatio is the default fraction of max TAT at which the
// warning zone turns critical. Tunable engine-wide and per rule.
const DefaultWarningRatio = 0.9

// Transition errors.
var (
	// ErrResolved is returned when a transition is attempted on a terminal record.
	ErrResolved = errors.New("tracking record is resolved")
	// ErrNotPaused is returned when resuming a record that is not paused.
	ErrNotPaused = errors.New("tracking record is not paused")
	// ErrAlreadyPaused is returned when pausing a record that is already paused.
	ErrAlreadyPaused = errors.New("tracking record is already paused")
)

// Tracker computes elapsed business time and drives tracking record
// transitions. It is stateless apart from configuration and safe for
// concurrent use on different records; callers serialize per record.
type Tracker struct {
	resolver     *calendar.Resolver
	warningRatio float64
	logger       zerolog.Logger
}

// NewTracker creates a new tracker. warningRatio <= 0 selects DefaultWarningRatio.
func NewTracker(resolver *calendar.Resolver, warningRatio float64, logger zerolog.Logger) *Tracker {
	if warningRatio <= 0 || warningRatio > 1 {
		warningRatio = DefaultWarningRatio
	}
	return &Tracker{
		resolver:     resolver,
		warningRatio: warningRatio,
		logger:       logger.With().Str("component", "sla_tracker").Logger(),
	}
}

// Start creates a tracking record for a ticket matched to a rule.
func (t *Tracker) Start(ticketID string, r *rule.SLARule, now time.Time) *Record {
	rec := &Record{
		TicketID:  ticketID,
		SLARuleID: r.ID,
		StartTime: now,
		State:     StateActive,
		Status:    StatusOnTrack,
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.logger.Info().
		Str("ticketId", ticketID).
		Str("ruleId", r.ID.String()).
		Time("slaStartTime", now).
		Msg("SLA tracking started")

	return rec
}

// Recompute refreshes elapsed business time and the compliance zone.
// It is a no-op for paused and resolved records, and idempotent for a
// given now.
func (t *Tracker) Recompute(rec *Record, r *rule.SLARule, s *calendar.Schedule, h *calendar.HolidayCalendar, now time.Time) error {
	if rec.State != StateActive {
		return nil
	}

	elapsed, err := t.elapsedAt(rec, s, h, now)
	if err != nil {
		return err
	}

	// Elapsed is monotonically non-decreasing while active.
	if elapsed < rec.BusinessElapsedMinutes {
		elapsed = rec.BusinessElapsedMinutes
	}

	status := t.classify(elapsed, r)
	if zoneRank(status) < zoneRank(rec.Status) {
		status = rec.Status
	}

	if status != rec.Status {
		t.logger.Info().
			Str("ticketId", rec.TicketID).
			Str("from", string(rec.Status)).
			Str("to", string(status)).
			Int("elapsedMinutes", elapsed).
			Msg("SLA zone changed")
	}

	rec.BusinessElapsedMinutes = elapsed
	rec.Status = status
	rec.UpdatedAt = now
	return nil
}

// Pause suspends the timer when the ticket enters a pause-condition status.
// The record's elapsed time and zone are refreshed first so they reflect the
// instant the pause began.
func (t *Tracker) Pause(rec *Record, r *rule.SLARule, s *calendar.Schedule, h *calendar.HolidayCalendar, now time.Time) error {
	switch rec.State {
	case StateResolved:
		return ErrResolved
	case StatePaused:
		return ErrAlreadyPaused
	}

	if err := t.Recompute(rec, r, s, h, now); err != nil {
		return err
	}

	paused := now
	rec.State = StatePaused
	rec.PauseStartedAt = &paused
	rec.UpdatedAt = now

	t.logger.Info().
		Str("ticketId", rec.TicketID).
		Time("pauseStartedAt", now).
		Msg("SLA timer paused")

	return nil
}

// Resume reactivates the timer. The closed pause interval contributes its
// wall-clock length to PausedMinutes and only its business-time overlap to
// BusinessPausedMinutes; a pause entirely outside business hours subtracts
// nothing from elapsed time.
func (t *Tracker) Resume(rec *Record, r *rule.SLARule, s *calendar.Schedule, h *calendar.HolidayCalendar, now time.Time) error {
	if rec.State == StateResolved {
		return ErrResolved
	}
	if rec.State != StatePaused || rec.PauseStartedAt == nil {
		return ErrNotPaused
	}

	if err := t.closePause(rec, s, h, now); err != nil {
		return err
	}
	rec.State = StateActive

	t.logger.Info().
		Str("ticketId", rec.TicketID).
		Int("pausedMinutes", rec.PausedMinutes).
		Int("businessPausedMinutes", rec.BusinessPausedMinutes).
		Msg("SLA timer resumed")

	return t.Recompute(rec, r, s, h, now)
}

// Resolve terminates tracking. An open pause interval is closed first.
// The final status freezes to the last computed zone and the record becomes
// immutable.
func (t *Tracker) Resolve(rec *Record, r *rule.SLARule, s *calendar.Schedule, h *calendar.HolidayCalendar, now time.Time) error {
	if rec.State == StateResolved {
		return ErrResolved
	}

	if rec.State == StatePaused && rec.PauseStartedAt != nil {
		if err := t.closePause(rec, s, h, now); err != nil {
			return err
		}
		rec.State = StateActive
	}

	if err := t.Recompute(rec, r, s, h, now); err != nil {
		return err
	}

	resolved := now
	rec.State = StateResolved
	rec.ResolvedAt = &resolved
	rec.FinalStatus = rec.Status
	rec.UpdatedAt = now

	t.logger.Info().
		Str("ticketId", rec.TicketID).
		Str("finalStatus", string(rec.FinalStatus)).
		Int("elapsedMinutes", rec.BusinessElapsedMinutes).
		Msg("SLA tracking resolved")

	return nil
}

// WarningRatioFor returns the effective warning/critical split for a rule.
func (t *Tracker) WarningRatioFor(r *rule.SLARule) float64 {
	if r != nil && r.WarningRatio > 0 {
		return r.WarningRatio
	}
	return t.warningRatio
}

// classify maps elapsed business minutes to a compliance zone. Min TAT is
// informational only; avg and max define the zone boundaries.
func (t *Tracker) classify(elapsed int, r *rule.SLARule) Status {
	switch {
	case elapsed >= r.MaxTATMinutes:
		return StatusBreached
	case elapsed >= r.AvgTATMinutes:
		if float64(elapsed) < t.WarningRatioFor(r)*float64(r.MaxTATMinutes) {
			return StatusWarning
		}
		return StatusCritical
	default:
		return StatusOnTrack
	}
}

// elapsedAt computes business elapsed minutes at now: working time since
// the SLA start minus the business-time portion of completed pauses.
// Clock regression clamps to zero.
func (t *Tracker) elapsedAt(rec *Record, s *calendar.Schedule, h *calendar.HolidayCalendar, now time.Time) (int, error) {
	if now.Before(rec.StartTime) {
		return 0, nil
	}

	gross, err := t.resolver.BusinessMinutesBetween(s, h, rec.StartTime, now)
	if err != nil {
		return 0, fmt.Errorf("business minutes for ticket %s: %w", rec.TicketID, err)
	}

	elapsed := gross - rec.BusinessPausedMinutes
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, nil
}

// closePause folds the open pause interval into the cumulative counters.
func (t *Tracker) closePause(rec *Record, s *calendar.Schedule, h *calendar.HolidayCalendar, now time.Time) error {
	start := *rec.PauseStartedAt
	if now.Before(start) {
		now = start
	}

	businessPaused, err := t.resolver.BusinessMinutesBetween(s, h, start, now)
	if err != nil {
		return fmt.Errorf("pause interval for ticket %s: %w", rec.TicketID, err)
	}

	rec.PausedMinutes += int(now.Sub(start) / time.Minute)
	rec.BusinessPausedMinutes += businessPaused
	rec.PauseStartedAt = nil
	rec.UpdatedAt = now
	return nil
}
