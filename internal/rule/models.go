// Package rule provides SLA rule configuration, escalation rule
// configuration, and rule matching for tickets.
package rule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerType identifies which compliance transition an escalation rule fires on.
type TriggerType string

const (
	TriggerWarningZone     TriggerType = "warning_zone"
	TriggerImminentBreach  TriggerType = "imminent_breach"
	TriggerBreached        TriggerType = "breached"
	TriggerRecurringBreach TriggerType = "recurring_breach"
)

// ReferenceThreshold identifies which TAT threshold an escalation rule is anchored to.
type ReferenceThreshold string

const (
	ReferenceAvgTAT ReferenceThreshold = "avg_tat"
	ReferenceMaxTAT ReferenceThreshold = "max_tat"
)

// RecipientSpec describes who should receive an escalation notification.
// Resolution to concrete recipients is delegated to an external directory.
type RecipientSpec struct {
	RecipientType      string `json:"recipientType"`
	RecipientRole      string `json:"recipientRole,omitempty"`
	NumberOfRecipients int    `json:"numberOfRecipients"`
}

// EscalationRule defines one escalation level attached to an SLA rule.
type EscalationRule struct {
	ID                    uuid.UUID          `json:"id"`
	SLARuleID             uuid.UUID          `json:"slaRuleId"`
	Level                 int                `json:"level"`
	TriggerType           TriggerType        `json:"triggerType"`
	ReferenceThreshold    ReferenceThreshold `json:"referenceThreshold"`
	TriggerOffsetMinutes  int                `json:"triggerOffsetMinutes"`
	RepeatIntervalMinutes *int               `json:"repeatIntervalMinutes,omitempty"`
	MaxRepeatCount        *int               `json:"maxRepeatCount,omitempty"`
	Recipients            RecipientSpec      `json:"recipients"`
	IncludeTicketDetails  bool               `json:"includeTicketDetails"`
	NotificationTemplate  string             `json:"notificationTemplate,omitempty"`
	IsActive              bool               `json:"isActive"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

// Validate checks escalation rule invariants.
func (e *EscalationRule) Validate() error {
	if e.Level < 1 {
		return fmt.Errorf("escalation level must be positive, got %d", e.Level)
	}
	switch e.TriggerType {
	case TriggerWarningZone, TriggerImminentBreach, TriggerBreached, TriggerRecurringBreach:
	default:
		return fmt.Errorf("unknown trigger type %q", e.TriggerType)
	}
	switch e.ReferenceThreshold {
	case ReferenceAvgTAT, ReferenceMaxTAT:
	default:
		return fmt.Errorf("unknown reference threshold %q", e.ReferenceThreshold)
	}
	if e.RepeatIntervalMinutes != nil && *e.RepeatIntervalMinutes < 1 {
		return fmt.Errorf("repeat interval must be positive, got %d", *e.RepeatIntervalMinutes)
	}
	if e.MaxRepeatCount != nil && e.RepeatIntervalMinutes == nil {
		return fmt.Errorf("max repeat count requires a repeat interval")
	}
	if e.MaxRepeatCount != nil && *e.MaxRepeatCount < 0 {
		return fmt.Errorf("max repeat count must not be negative, got %d", *e.MaxRepeatCount)
	}
	if e.Recipients.NumberOfRecipients < 1 {
		return fmt.Errorf("number of recipients must be positive, got %d", e.Recipients.NumberOfRecipients)
	}
	return nil
}

// SLARule defines turnaround-time targets and matching conditions.
// Condition sets are ORs within a dimension and ANDs across dimensions;
// an empty set means "any".
type SLARule struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	PriorityOrder int       `json:"priorityOrder"`

	MinTATMinutes int `json:"minTatMinutes"`
	AvgTATMinutes int `json:"avgTatMinutes"`
	MaxTATMinutes int `json:"maxTatMinutes"`

	Priorities       []string `json:"priorities,omitempty"`
	TicketTypes      []string `json:"ticketTypes,omitempty"`
	Channels         []string `json:"channels,omitempty"`
	AssetImportances []string `json:"assetImportances,omitempty"`
	VIPOverride      bool     `json:"vipOverride"`

	ScheduleID        *uuid.UUID `json:"scheduleId,omitempty"`
	HolidayCalendarID *uuid.UUID `json:"holidayCalendarId,omitempty"`

	PauseStatuses []string `json:"pauseStatuses,omitempty"`

	// WarningRatio overrides the engine-wide warning/critical split for this
	// rule. Zero means "use the engine default".
	WarningRatio float64 `json:"warningRatio,omitempty"`

	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks SLA rule invariants: min >= 1 and min <= avg <= max.
func (r *SLARule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.MinTATMinutes < 1 {
		return fmt.Errorf("min TAT must be at least 1 minute, got %d", r.MinTATMinutes)
	}
	if r.MinTATMinutes > r.AvgTATMinutes || r.AvgTATMinutes > r.MaxTATMinutes {
		return fmt.Errorf("TAT thresholds must satisfy min <= avg <= max, got %d/%d/%d",
			r.MinTATMinutes, r.AvgTATMinutes, r.MaxTATMinutes)
	}
	if r.WarningRatio < 0 || r.WarningRatio > 1 {
		return fmt.Errorf("warning ratio must be in [0, 1], got %v", r.WarningRatio)
	}
	return nil
}

// PausesOn reports whether the given ticket status suspends the SLA timer.
// An empty or malformed pause set never pauses.
func (r *SLARule) PausesOn(status string) bool {
	for _, s := range r.PauseStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// TicketAttributes carries the ticket dimensions used for rule matching.
type TicketAttributes struct {
	TicketID        string `json:"ticketId"`
	Priority        string `json:"priority"`
	TicketType      string `json:"ticketType"`
	Channel         string `json:"channel"`
	AssetImportance string `json:"assetImportance"`
	VIP             bool   `json:"vip"`
	Status          string `json:"status"`
}
