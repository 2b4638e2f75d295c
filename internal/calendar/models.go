// Package calendar provides business-hours schedules, holiday calendars,
// and the business-time arithmetic used by SLA tracking.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DayRule defines the working interval for a single weekday.
// Weekday follows time.Weekday numbering (0 = Sunday).
type DayRule struct {
	Weekday      int    `json:"weekday"`
	IsWorkingDay bool   `json:"isWorkingDay"`
	Start        string `json:"start"` // "HH:MM"
	End          string `json:"end"`   // "HH:MM"
}

// BreakRule defines a non-working interval inside the working day.
// Days lists the weekdays (0-6) the break applies to; empty means all days.
type BreakRule struct {
	Name  string `json:"name"`
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`   // "HH:MM"
	Days  []int  `json:"days,omitempty"`
}

// Schedule represents a business-hours schedule domain model.
type Schedule struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Timezone  string      `json:"timezone"`
	DayRules  []DayRule   `json:"dayRules"`
	Breaks    []BreakRule `json:"breaks,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// HolidayDate represents a single holiday entry.
// Recurring holidays repeat every year on the same month/day.
type HolidayDate struct {
	Date        time.Time `json:"date"`
	Name        string    `json:"name"`
	IsRecurring bool      `json:"isRecurring"`
}

// HolidayCalendar represents a holiday calendar domain model.
type HolidayCalendar struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Year      int           `json:"year"`
	Holidays  []HolidayDate `json:"holidays"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// DefaultSchedule returns a Mon-Fri 09:00-18:00 schedule in the given timezone.
func DefaultSchedule(name, timezone string) *Schedule {
	s := &Schedule{
		Name:     name,
		Timezone: timezone,
	}
	for wd := 0; wd < 7; wd++ {
		working := wd >= int(time.Monday) && wd <= int(time.Friday)
		s.DayRules = append(s.DayRules, DayRule{
			Weekday:      wd,
			IsWorkingDay: working,
			Start:        "09:00",
			End:          "18:00",
		})
	}
	return s
}

// Validate checks the schedule invariants: at most one DayRule per weekday,
// start before end, and breaks contained in the owning day's working interval.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("schedule name is required")
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}

	seen := make(map[int]DayRule)
	for _, dr := range s.DayRules {
		if dr.Weekday < 0 || dr.Weekday > 6 {
			return fmt.Errorf("day rule weekday %d out of range", dr.Weekday)
		}
		if _, dup := seen[dr.Weekday]; dup {
			return fmt.Errorf("duplicate day rule for weekday %d", dr.Weekday)
		}
		seen[dr.Weekday] = dr

		if !dr.IsWorkingDay {
			continue
		}
		start, err := parseMinuteOfDay(dr.Start)
		if err != nil {
			return fmt.Errorf("day rule for weekday %d: %w", dr.Weekday, err)
		}
		end, err := parseMinuteOfDay(dr.End)
		if err != nil {
			return fmt.Errorf("day rule for weekday %d: %w", dr.Weekday, err)
		}
		if start >= end {
			return fmt.Errorf("day rule for weekday %d: start %s must be before end %s", dr.Weekday, dr.Start, dr.End)
		}
	}

	for _, br := range s.Breaks {
		start, err := parseMinuteOfDay(br.Start)
		if err != nil {
			return fmt.Errorf("break %q: %w", br.Name, err)
		}
		end, err := parseMinuteOfDay(br.End)
		if err != nil {
			return fmt.Errorf("break %q: %w", br.Name, err)
		}
		// A break spanning midnight is invalid configuration.
		if start >= end {
			return fmt.Errorf("break %q: start %s must be before end %s", br.Name, br.Start, br.End)
		}

		for _, day := range br.Days {
			if day < 0 || day > 6 {
				return fmt.Errorf("break %q: weekday %d out of range", br.Name, day)
			}
			dr, ok := seen[day]
			if !ok || !dr.IsWorkingDay {
				continue
			}
			ws, _ := parseMinuteOfDay(dr.Start)
			we, _ := parseMinuteOfDay(dr.End)
			if start < ws || end > we {
				return fmt.Errorf("break %q: interval %s-%s falls outside working hours %s-%s on weekday %d",
					br.Name, br.Start, br.End, dr.Start, dr.End, day)
			}
		}
	}

	return nil
}

// Validate checks holiday calendar entries.
func (h *HolidayCalendar) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("holiday calendar name is required")
	}
	for _, hd := range h.Holidays {
		if hd.Date.IsZero() {
			return fmt.Errorf("holiday %q: date is required", hd.Name)
		}
	}
	return nil
}

// parseMinuteOfDay parses an "HH:MM" string into minutes from midnight.
func parseMinuteOfDay(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format, expected HH:MM: %s", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour: %s", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %s", parts[1])
	}

	return hour*60 + minute, nil
}
