// Package engine wires rule matching, business-time tracking, and
// escalation scheduling into the ticket lifecycle operations exposed by
// the service.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kneutral-org/sla-engine/internal/calendar"
	"github.com/kneutral-org/sla-engine/internal/escalation"
	"github.com/kneutral-org/sla-engine/internal/metrics"
	"github.com/kneutral-org/sla-engine/internal/rule"
	"github.com/kneutral-org/sla-engine/internal/tracker"
)

// ErrNoMatch is returned when no active SLA rule matches a ticket.
var ErrNoMatch = errors.New("no SLA rule matches ticket")

// Options configures an Engine.
type Options struct {
	Rules     rule.Store
	Records   tracker.RecordStore
	Schedules calendar.ScheduleStore
	Calendars calendar.HolidayCalendarStore

	Resolver   escalation.RecipientResolver
	Dispatcher escalation.Dispatcher

	// WarningRatio and RepeatCeiling override the built-in defaults when
	// positive.
	WarningRatio  float64
	RepeatCeiling int

	// SweepWorkers is the recompute sweep pool size; <= 0 selects 1.
	SweepWorkers int

	Clock  tracker.Clock
	Logger zerolog.Logger
}

// Engine drives the SLA lifecycle for tickets. All record mutations are
// serialized per ticket; escalation delivery happens outside the per-ticket
// lock.
type Engine struct {
	rules     rule.Store
	records   tracker.RecordStore
	schedules calendar.ScheduleStore
	calendars calendar.HolidayCalendarStore

	matcher   *rule.Matcher
	tracker   *tracker.Tracker
	scheduler *escalation.Scheduler

	resolver   escalation.RecipientResolver
	dispatcher escalation.Dispatcher

	clock        tracker.Clock
	sweepWorkers int
	logger       zerolog.Logger

	locks ticketLocks
}

// New creates an Engine from options.
func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = tracker.SystemClock{}
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = escalation.NewLogDispatcher(opts.Logger)
	}
	workers := opts.SweepWorkers
	if workers <= 0 {
		workers = 1
	}

	resolver := calendar.NewResolver()
	return &Engine{
		rules:        opts.Rules,
		records:      opts.Records,
		schedules:    opts.Schedules,
		calendars:    opts.Calendars,
		matcher:      rule.NewMatcher(opts.Logger),
		tracker:      tracker.NewTracker(resolver, opts.WarningRatio, opts.Logger),
		scheduler:    escalation.NewScheduler(resolver, opts.RepeatCeiling, opts.Logger),
		resolver:     opts.Resolver,
		dispatcher:   dispatcher,
		clock:        clock,
		sweepWorkers: workers,
		logger:       opts.Logger.With().Str("component", "sla_engine").Logger(),
	}
}

// OnTicketCreated matches the ticket against the active rules and starts
// tracking. Returns ErrNoMatch when no rule applies and
// tracker.ErrDuplicate when the ticket is already tracked.
func (e *Engine) OnTicketCreated(ctx context.Context, attrs rule.TicketAttributes) (*tracker.Record, error) {
	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	matched := e.matcher.Match(attrs, rules)
	if matched == nil {
		metrics.RecordTicketUnmatched()
		e.logger.Info().
			Str("ticketId", attrs.TicketID).
			Msg("no SLA rule matched, ticket not tracked")
		return nil, ErrNoMatch
	}

	rec := e.tracker.Start(attrs.TicketID, matched, e.clock.Now())
	if err := e.records.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}

	metrics.RecordTicketTracked(matched.Name)
	return rec, nil
}

// OnTicketStatusChanged applies a ticket status change: the timer pauses
// when the new status is one of the rule's pause conditions and resumes
// otherwise. Elapsed time and due escalations are refreshed along the way.
func (e *Engine) OnTicketStatusChanged(ctx context.Context, ticketID, status string) (*tracker.Record, error) {
	rec, events, err := e.withRecord(ctx, ticketID, func(snap *snapshot) error {
		now := e.clock.Now()
		pausing := snap.rule.PausesOn(status)

		switch {
		case pausing && snap.rec.State == tracker.StateActive:
			return e.tracker.Pause(snap.rec, snap.rule, snap.schedule, snap.holidays, now)
		case !pausing && snap.rec.IsPaused():
			return e.tracker.Resume(snap.rec, snap.rule, snap.schedule, snap.holidays, now)
		case snap.rec.IsResolved():
			return tracker.ErrResolved
		default:
			return e.tracker.Recompute(snap.rec, snap.rule, snap.schedule, snap.holidays, now)
		}
	})
	if err != nil {
		return nil, err
	}

	e.dispatchEvents(ctx, events)
	return rec, nil
}

// OnTicketResolved terminates tracking for the ticket and freezes its final
// compliance status. No escalations fire at or after resolution.
func (e *Engine) OnTicketResolved(ctx context.Context, ticketID string) (*tracker.Record, error) {
	rec, _, err := e.withRecord(ctx, ticketID, func(snap *snapshot) error {
		return e.tracker.Resolve(snap.rec, snap.rule, snap.schedule, snap.holidays, e.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTicketResolved(string(rec.FinalStatus))
	return rec, nil
}

// RecomputeTicket refreshes the ticket's elapsed time and zone, and fires
// any escalations that became due. It is the unit of work of the periodic
// sweep and is idempotent for a given instant.
func (e *Engine) RecomputeTicket(ctx context.Context, ticketID string) (*tracker.Record, error) {
	rec, events, err := e.withRecord(ctx, ticketID, func(snap *snapshot) error {
		return e.tracker.Recompute(snap.rec, snap.rule, snap.schedule, snap.holidays, e.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	e.dispatchEvents(ctx, events)
	return rec, nil
}

// GetTracking returns the current tracking record for a ticket without
// mutating it.
func (e *Engine) GetTracking(ctx context.Context, ticketID string) (*tracker.Record, error) {
	return e.records.GetRecord(ctx, ticketID)
}

// snapshot bundles the record with the rule and calendar configuration in
// effect for one recompute.
type snapshot struct {
	rec      *tracker.Record
	rule     *rule.SLARule
	schedule *calendar.Schedule
	holidays *calendar.HolidayCalendar
}

// withRecord loads the ticket's record and configuration, runs fn under the
// per-ticket lock, persists the record, and logs any newly due escalations
// to the fire log. The returned events are already recorded as fired and
// must be handed to dispatchEvents by the caller, outside the lock.
func (e *Engine) withRecord(ctx context.Context, ticketID string, fn func(*snapshot) error) (*tracker.Record, []escalation.Event, error) {
	unlock := e.locks.lock(ticketID)
	defer unlock()

	rec, err := e.records.GetRecord(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}

	snap, err := e.loadSnapshot(ctx, rec)
	if err != nil {
		return nil, nil, err
	}

	prevZone := rec.Status

	if err := fn(snap); err != nil {
		return nil, nil, err
	}

	if err := e.records.UpdateRecord(ctx, rec); err != nil {
		return nil, nil, fmt.Errorf("persist record for ticket %s: %w", ticketID, err)
	}

	if rec.Status != prevZone {
		metrics.RecordZoneTransition(string(prevZone), string(rec.Status))
	}

	events, err := e.collectDueEvents(ctx, snap)
	if err != nil {
		return nil, nil, err
	}
	return rec, events, nil
}

// loadSnapshot resolves the record's rule and calendar configuration.
// A missing schedule or holiday calendar degrades to 24x7 / no holidays so
// a configuration deletion cannot stall tracking.
func (e *Engine) loadSnapshot(ctx context.Context, rec *tracker.Record) (*snapshot, error) {
	r, err := e.rules.GetRule(ctx, rec.SLARuleID)
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", rec.SLARuleID, err)
	}

	snap := &snapshot{rec: rec, rule: r}

	if r.ScheduleID != nil {
		snap.schedule, err = e.schedules.GetSchedule(ctx, *r.ScheduleID)
		if err != nil && !errors.Is(err, calendar.ErrNotFound) {
			return nil, fmt.Errorf("load schedule %s: %w", r.ScheduleID, err)
		}
		if errors.Is(err, calendar.ErrNotFound) {
			e.logger.Warn().
				Str("ticketId", rec.TicketID).
				Str("scheduleId", r.ScheduleID.String()).
				Msg("schedule missing, tracking around the clock")
		}
	}

	if r.HolidayCalendarID != nil {
		snap.holidays, err = e.calendars.GetCalendar(ctx, *r.HolidayCalendarID)
		if err != nil && !errors.Is(err, calendar.ErrNotFound) {
			return nil, fmt.Errorf("load holiday calendar %s: %w", r.HolidayCalendarID, err)
		}
	}

	return snap, nil
}

// collectDueEvents evaluates the escalation rules and appends a fire-log
// entry for every due event. Appends happen under the per-ticket lock, so
// each (rule, repeat index) pair is recorded exactly once even across
// concurrent sweeps.
func (e *Engine) collectDueEvents(ctx context.Context, snap *snapshot) ([]escalation.Event, error) {
	if snap.rec.IsResolved() || snap.rec.IsPaused() {
		return nil, nil
	}

	escalations, err := e.rules.ListEscalations(ctx, snap.rule.ID)
	if err != nil {
		return nil, fmt.Errorf("list escalations for rule %s: %w", snap.rule.ID, err)
	}
	if len(escalations) == 0 {
		return nil, nil
	}

	events, err := e.scheduler.Due(snap.rec, snap.rule, snap.schedule, snap.holidays, escalations, e.clock.Now())
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		entry := tracker.FireLogEntry{
			EscalationRuleID: ev.EscalationRuleID,
			RepeatIndex:      ev.RepeatIndex,
			FiredAt:          ev.FiredAt,
		}
		if err := e.records.AppendFireLog(ctx, snap.rec.TicketID, entry); err != nil {
			return nil, fmt.Errorf("append fire log for ticket %s: %w", snap.rec.TicketID, err)
		}
		snap.rec.FireLog = append(snap.rec.FireLog, entry)
	}

	return events, nil
}

// dispatchEvents resolves recipients and delivers each fired event. A
// resolution or delivery failure marks the fire-log entry as
// delivery-failed; the event still counts as fired and is never retried.
func (e *Engine) dispatchEvents(ctx context.Context, events []escalation.Event) {
	for _, ev := range events {
		metrics.RecordEscalationFired(strconv.Itoa(ev.Level), string(ev.TriggerType))

		recipients, err := e.resolveRecipients(ctx, ev)
		if err != nil {
			e.markDeliveryFailed(ctx, ev, "recipient resolution failed", err)
			continue
		}

		if err := e.dispatcher.Dispatch(ctx, ev, recipients); err != nil {
			e.markDeliveryFailed(ctx, ev, "escalation delivery failed", err)
		}
	}
}

func (e *Engine) resolveRecipients(ctx context.Context, ev escalation.Event) ([]escalation.Recipient, error) {
	if e.resolver == nil {
		return nil, nil
	}
	return e.resolver.Resolve(ctx, ev.Recipients)
}

func (e *Engine) markDeliveryFailed(ctx context.Context, ev escalation.Event, msg string, cause error) {
	metrics.RecordEscalationDeliveryFailure()
	e.logger.Warn().
		Err(cause).
		Str("ticketId", ev.TicketID).
		Str("escalationRuleId", ev.EscalationRuleID.String()).
		Int("repeatIndex", ev.RepeatIndex).
		Msg(msg)

	if err := e.records.MarkDeliveryFailed(ctx, ev.TicketID, ev.EscalationRuleID, ev.RepeatIndex); err != nil {
		e.logger.Error().
			Err(err).
			Str("ticketId", ev.TicketID).
			Msg("failed to mark fire-log entry as undelivered")
	}
}

// ticketLocks serializes record mutations per ticket.
type ticketLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *ticketLocks) lock(ticketID string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	l, ok := t.locks[ticketID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[ticketID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
