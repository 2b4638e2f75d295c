// Package tracker owns the per-ticket SLA timer state machine: start,
// pause, resume, elapsed computation, zone classification, and terminal
// resolution.
package tracker

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a tracking record.
type State string

const (
	StateActive   State = "ACTIVE"
	StatePaused   State = "PAUSED"
	StateResolved State = "RESOLVED"
)

// Status is the compliance zone of a ticket's elapsed business time.
type Status string

const (
	StatusOnTrack  Status = "on_track"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusBreached Status = "breached"
)

// zoneRank orders statuses for monotonicity checks; a ticket never moves
// backward through on_track -> warning -> critical -> breached while active.
func zoneRank(s Status) int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusBreached:
		return 3
	default:
		return 0
	}
}

// FireLogEntry records a delivered escalation decision. The (rule, repeat
// index) pair is emitted at most once; DeliveryFailed marks events whose
// recipient resolution failed but which still count as fired.
type FireLogEntry struct {
	EscalationRuleID uuid.UUID `json:"escalationRuleId"`
	RepeatIndex      int       `json:"repeatIndex"`
	FiredAt          time.Time `json:"firedAt"`
	DeliveryFailed   bool      `json:"deliveryFailed,omitempty"`
}

// Record is the per-ticket SLA tracking record. It is created exactly once
// when a ticket is matched to a rule, mutated only through Tracker
// transitions and escalation fire-log appends, and frozen once resolved.
type Record struct {
	TicketID  string    `json:"ticketId"`
	SLARuleID uuid.UUID `json:"slaRuleId"`

	StartTime              time.Time `json:"slaStartTime"`
	BusinessElapsedMinutes int       `json:"businessElapsedMinutes"`

	State          State      `json:"state"`
	PauseStartedAt *time.Time `json:"pauseStartedAt,omitempty"`

	// PausedMinutes accumulates wall-clock pause time;
	// BusinessPausedMinutes accumulates only the business-time portion,
	// which is what elapsed computation subtracts.
	PausedMinutes         int `json:"pausedMinutes"`
	BusinessPausedMinutes int `json:"businessPausedMinutes"`

	Status      Status     `json:"slaStatus"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	FinalStatus Status     `json:"finalStatus,omitempty"`

	FireLog []FireLogEntry `json:"fireLog,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsPaused reports whether the timer is currently suspended.
func (r *Record) IsPaused() bool {
	return r.State == StatePaused
}

// IsResolved reports whether the record is terminal.
func (r *Record) IsResolved() bool {
	return r.State == StateResolved
}

// HasFired reports whether the given escalation rule already fired at the
// given repeat index.
func (r *Record) HasFired(escalationRuleID uuid.UUID, repeatIndex int) bool {
	for _, entry := range r.FireLog {
		if entry.EscalationRuleID == escalationRuleID && entry.RepeatIndex == repeatIndex {
			return true
		}
	}
	return false
}

// FiredCount returns the number of fire-log entries for an escalation rule.
// Entries are appended with contiguous repeat indexes, so this is also the
// next undelivered repeat index.
func (r *Record) FiredCount(escalationRuleID uuid.UUID) int {
	n := 0
	for _, entry := range r.FireLog {
		if entry.EscalationRuleID == escalationRuleID {
			n++
		}
	}
	return n
}
