// Package escalation computes due escalation notifications for tracked
// tickets and hands them to an external dispatcher.
package escalation

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/sla-engine/internal/calendar"
	"github.com/kneutral-org/sla-engine/internal/rule"
	"github.com/kneutral-org/sla-engine/internal/tracker"
)

// DefaultRepeatCeiling caps repeats for escalation rules with a repeat
// interval but no max repeat count, so recompute can never arm unbounded
// timers.
const DefaultRepeatCeiling = 100

// Event is an escalation notification decision. The (EscalationRuleID,
// RepeatIndex) pair is emitted at most once per ticket.
type Event struct {
	TicketID             string             `json:"ticketId"`
	SLARuleID            uuid.UUID          `json:"slaRuleId"`
	EscalationRuleID     uuid.UUID          `json:"escalationRuleId"`
	Level                int                `json:"level"`
	TriggerType          rule.TriggerType   `json:"triggerType"`
	RepeatIndex          int                `json:"repeatIndex"`
	Recipients           rule.RecipientSpec `json:"recipients"`
	NotificationTemplate string             `json:"notificationTemplate,omitempty"`
	IncludeTicketDetails bool               `json:"includeTicketDetails"`
	FiredAt              time.Time          `json:"firedAt"`
}

// Scheduler evaluates escalation rules against a tracking record and emits
// the events that are due. It is stateless; the record's fire log is the
// only delivery memory.
type Scheduler struct {
	resolver      *calendar.Resolver
	repeatCeiling int
	logger        zerolog.Logger
}

// NewScheduler creates a new escalation scheduler. repeatCeiling <= 0
// selects DefaultRepeatCeiling.
func NewScheduler(resolver *calendar.Resolver, repeatCeiling int, logger zerolog.Logger) *Scheduler {
	if repeatCeiling <= 0 {
		repeatCeiling = DefaultRepeatCeiling
	}
	return &Scheduler{
		resolver:      resolver,
		repeatCeiling: repeatCeiling,
		logger:        logger.With().Str("component", "escalation_scheduler").Logger(),
	}
}

// Due returns the escalation events due at now for the record, in level
// order. Resolved records never escalate; paused records hold their
// escalations until the timer resumes. Already-logged (rule, repeat index)
// pairs are never re-emitted.
func (s *Scheduler) Due(rec *tracker.Record, slaRule *rule.SLARule, sched *calendar.Schedule, holidays *calendar.HolidayCalendar, escalations []*rule.EscalationRule, now time.Time) ([]Event, error) {
	if rec == nil || rec.IsResolved() || rec.IsPaused() {
		return nil, nil
	}

	var events []Event
	for _, esc := range escalations {
		if esc == nil || !esc.IsActive {
			continue
		}

		due, err := s.dueForRule(rec, slaRule, sched, holidays, esc, now)
		if err != nil {
			return nil, err
		}
		events = append(events, due...)
	}

	return events, nil
}

// dueForRule computes the pending events for one escalation rule.
func (s *Scheduler) dueForRule(rec *tracker.Record, slaRule *rule.SLARule, sched *calendar.Schedule, holidays *calendar.HolidayCalendar, esc *rule.EscalationRule, now time.Time) ([]Event, error) {
	trigger, ok, err := s.triggerInstant(rec, slaRule, sched, holidays, esc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	// Repeat indexes are contiguous from 0, so the fired count is the next
	// undelivered index.
	next := rec.FiredCount(esc.ID)
	last := s.lastRepeatIndex(esc)

	var events []Event
	for k := next; k <= last; k++ {
		due := trigger
		if k > 0 {
			due = trigger.Add(time.Duration(k**esc.RepeatIntervalMinutes) * time.Minute)
		}
		if now.Before(due) {
			break
		}

		events = append(events, Event{
			TicketID:             rec.TicketID,
			SLARuleID:            slaRule.ID,
			EscalationRuleID:     esc.ID,
			Level:                esc.Level,
			TriggerType:          esc.TriggerType,
			RepeatIndex:          k,
			Recipients:           esc.Recipients,
			NotificationTemplate: esc.NotificationTemplate,
			IncludeTicketDetails: esc.IncludeTicketDetails,
			FiredAt:              now,
		})

		s.logger.Debug().
			Str("ticketId", rec.TicketID).
			Str("escalationRuleId", esc.ID.String()).
			Int("level", esc.Level).
			Int("repeatIndex", k).
			Time("dueAt", due).
			Msg("escalation due")
	}

	return events, nil
}

// triggerInstant computes the calendar instant at which the record's
// business elapsed time reaches the rule's reference threshold, compensated
// by business time lost to pauses, plus the wall-clock trigger offset.
// ok is false when the schedule yields no working time within the scan
// horizon, in which case the rule can never trigger.
func (s *Scheduler) triggerInstant(rec *tracker.Record, slaRule *rule.SLARule, sched *calendar.Schedule, holidays *calendar.HolidayCalendar, esc *rule.EscalationRule) (time.Time, bool, error) {
	ref := slaRule.AvgTATMinutes
	if esc.ReferenceThreshold == rule.ReferenceMaxTAT {
		ref = slaRule.MaxTATMinutes
	}

	trigger, err := s.resolver.AddBusinessMinutes(sched, holidays, rec.StartTime, ref+rec.BusinessPausedMinutes)
	if err != nil {
		// A schedule with no reachable working time means the threshold is
		// never crossed; surface nothing rather than failing the sweep.
		s.logger.Warn().
			Err(err).
			Str("ticketId", rec.TicketID).
			Str("escalationRuleId", esc.ID.String()).
			Msg("threshold instant unreachable, skipping escalation rule")
		return time.Time{}, false, nil
	}

	// Offsets are short-horizon and intentionally wall-clock.
	trigger = trigger.Add(time.Duration(esc.TriggerOffsetMinutes) * time.Minute)
	return trigger, true, nil
}

// lastRepeatIndex returns the highest repeat index the rule may fire.
func (s *Scheduler) lastRepeatIndex(esc *rule.EscalationRule) int {
	if esc.RepeatIntervalMinutes == nil {
		return 0
	}
	if esc.MaxRepeatCount != nil {
		return *esc.MaxRepeatCount
	}
	return s.repeatCeiling
}
