package calendar

import (
	"fmt"
	"time"

	"github.com/rickar/cal/v2"
)

// maxScanDays bounds forward scans in AddBusinessMinutes so a schedule with
// no working time cannot loop forever.
const maxScanDays = 3660

// Resolver answers "is this instant working time?" and "how much working time
// lies between two instants?" for a schedule snapshot. It is pure and
// deterministic: no wall-clock reads, safe to share across workers.
type Resolver struct{}

// NewResolver creates a new calendar resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// interval is a half-open [start, end) range in minutes from midnight.
type interval struct {
	start int
	end   int
}

// BusinessMinutesBetween computes the working minutes in [from, to) under the
// schedule and holiday calendar. A nil schedule means 24x7 working time.
// from after to yields 0 minutes, not an error.
func (r *Resolver) BusinessMinutesBetween(s *Schedule, h *HolidayCalendar, from, to time.Time) (int, error) {
	if !from.Before(to) {
		return 0, nil
	}

	if s == nil {
		return int(to.Sub(from) / time.Minute), nil
	}

	loc := loadTimezone(s.Timezone)
	from = from.In(loc)
	to = to.In(loc)

	holidays := newHolidayChecker(h)

	total := 0
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for day.Before(to) {
		next := day.AddDate(0, 0, 1)

		if !holidays.isHoliday(day) {
			segments, err := r.daySegments(s, int(day.Weekday()))
			if err != nil {
				return 0, err
			}

			rangeStart := 0
			if from.After(day) {
				rangeStart = minuteOfDay(from)
			}
			rangeEnd := minutesPerDay
			if to.Before(next) {
				rangeEnd = minuteOfDay(to)
			}

			for _, seg := range segments {
				total += overlap(seg, interval{rangeStart, rangeEnd})
			}
		}

		day = next
	}

	return total, nil
}

// AddBusinessMinutes returns the instant at which the working time elapsed
// since from reaches the given number of minutes. A nil schedule means
// wall-clock addition.
func (r *Resolver) AddBusinessMinutes(s *Schedule, h *HolidayCalendar, from time.Time, minutes int) (time.Time, error) {
	if minutes <= 0 {
		return from, nil
	}

	if s == nil {
		return from.Add(time.Duration(minutes) * time.Minute), nil
	}

	loc := loadTimezone(s.Timezone)
	from = from.In(loc)

	holidays := newHolidayChecker(h)

	remaining := minutes
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for i := 0; i < maxScanDays; i++ {
		if !holidays.isHoliday(day) {
			segments, err := r.daySegments(s, int(day.Weekday()))
			if err != nil {
				return time.Time{}, err
			}

			floor := 0
			if day.Year() == from.Year() && day.YearDay() == from.YearDay() {
				floor = minuteOfDay(from)
			}

			for _, seg := range segments {
				if seg.end <= floor {
					continue
				}
				if seg.start < floor {
					seg.start = floor
				}
				length := seg.end - seg.start
				if remaining <= length {
					return day.Add(time.Duration(seg.start+remaining) * time.Minute), nil
				}
				remaining -= length
			}
		}

		day = day.AddDate(0, 0, 1)
	}

	return time.Time{}, fmt.Errorf("no working time within %d days of %s", maxScanDays, from.Format(time.RFC3339))
}

// IsWorkingTime reports whether t falls inside the schedule's working hours
// and outside holidays. A nil schedule means always working.
func (r *Resolver) IsWorkingTime(s *Schedule, h *HolidayCalendar, t time.Time) (bool, error) {
	if s == nil {
		return true, nil
	}

	loc := loadTimezone(s.Timezone)
	t = t.In(loc)

	if newHolidayChecker(h).isHoliday(t) {
		return false, nil
	}

	segments, err := r.daySegments(s, int(t.Weekday()))
	if err != nil {
		return false, err
	}

	mod := minuteOfDay(t)
	for _, seg := range segments {
		if mod >= seg.start && mod < seg.end {
			return true, nil
		}
	}
	return false, nil
}

const minutesPerDay = 24 * 60

// daySegments returns the working intervals for a weekday: the day rule's
// window with applicable breaks carved out. Breaks are clamped to the
// working window. A weekday with no rule or a non-working rule yields none.
func (r *Resolver) daySegments(s *Schedule, weekday int) ([]interval, error) {
	var rule *DayRule
	for i := range s.DayRules {
		if s.DayRules[i].Weekday == weekday {
			rule = &s.DayRules[i]
			break
		}
	}
	if rule == nil || !rule.IsWorkingDay {
		return nil, nil
	}

	start, err := parseMinuteOfDay(rule.Start)
	if err != nil {
		return nil, fmt.Errorf("day rule for weekday %d: %w", weekday, err)
	}
	end, err := parseMinuteOfDay(rule.End)
	if err != nil {
		return nil, fmt.Errorf("day rule for weekday %d: %w", weekday, err)
	}
	if start >= end {
		return nil, nil
	}

	segments := []interval{{start, end}}
	for _, br := range s.Breaks {
		if !breakAppliesTo(br, weekday) {
			continue
		}
		bs, err := parseMinuteOfDay(br.Start)
		if err != nil {
			return nil, fmt.Errorf("break %q: %w", br.Name, err)
		}
		be, err := parseMinuteOfDay(br.End)
		if err != nil {
			return nil, fmt.Errorf("break %q: %w", br.Name, err)
		}
		segments = subtract(segments, interval{bs, be})
	}

	return segments, nil
}

// subtract removes cut from each segment, possibly splitting segments in two.
func subtract(segments []interval, cut interval) []interval {
	var out []interval
	for _, seg := range segments {
		if cut.end <= seg.start || cut.start >= seg.end {
			out = append(out, seg)
			continue
		}
		if cut.start > seg.start {
			out = append(out, interval{seg.start, cut.start})
		}
		if cut.end < seg.end {
			out = append(out, interval{cut.end, seg.end})
		}
	}
	return out
}

func overlap(a, b interval) int {
	start := a.start
	if b.start > start {
		start = b.start
	}
	end := a.end
	if b.end < end {
		end = b.end
	}
	if end <= start {
		return 0
	}
	return end - start
}

func breakAppliesTo(br BreakRule, weekday int) bool {
	if len(br.Days) == 0 {
		return true
	}
	for _, d := range br.Days {
		if d == weekday {
			return true
		}
	}
	return false
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// loadTimezone loads a timezone by name, defaulting to UTC if invalid.
func loadTimezone(tzName string) *time.Location {
	if tzName == "" {
		return time.UTC
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.UTC
	}

	return loc
}

// holidayChecker wraps a rickar/cal calendar built from a HolidayCalendar.
type holidayChecker struct {
	cal *cal.Calendar
}

// newHolidayChecker converts the holiday calendar into a rickar/cal calendar.
// Recurring entries become month/day holidays for every year; one-time
// entries are pinned to their year.
func newHolidayChecker(h *HolidayCalendar) *holidayChecker {
	if h == nil || len(h.Holidays) == 0 {
		return &holidayChecker{}
	}

	c := &cal.Calendar{Name: h.Name, Cacheable: true}
	for _, hd := range h.Holidays {
		holiday := &cal.Holiday{
			Name:  hd.Name,
			Type:  cal.ObservancePublic,
			Month: hd.Date.Month(),
			Day:   hd.Date.Day(),
			Func:  cal.CalcDayOfMonth,
		}
		if !hd.IsRecurring {
			holiday.StartYear = hd.Date.Year()
			holiday.EndYear = hd.Date.Year()
		}
		c.AddHoliday(holiday)
	}

	return &holidayChecker{cal: c}
}

func (hc *holidayChecker) isHoliday(t time.Time) bool {
	if hc.cal == nil {
		return false
	}
	actual, _, _ := hc.cal.IsHoliday(t)
	return actual
}
