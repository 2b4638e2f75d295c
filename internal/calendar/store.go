package calendar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a schedule or holiday calendar does not exist.
var ErrNotFound = errors.New("not found")

// ScheduleStore defines the interface for business-hours schedule persistence.
type ScheduleStore interface {
	// CreateSchedule creates a new schedule. The schedule is validated first.
	CreateSchedule(ctx context.Context, s *Schedule) (*Schedule, error)

	// GetSchedule retrieves a schedule by ID.
	GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// ListSchedules retrieves all schedules.
	ListSchedules(ctx context.Context) ([]*Schedule, error)

	// UpdateSchedule updates an existing schedule.
	UpdateSchedule(ctx context.Context, s *Schedule) (*Schedule, error)

	// DeleteSchedule deletes a schedule.
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
}

// HolidayCalendarStore defines the interface for holiday calendar persistence.
type HolidayCalendarStore interface {
	// CreateCalendar creates a new holiday calendar.
	CreateCalendar(ctx context.Context, c *HolidayCalendar) (*HolidayCalendar, error)

	// GetCalendar retrieves a holiday calendar by ID.
	GetCalendar(ctx context.Context, id uuid.UUID) (*HolidayCalendar, error)

	// ListCalendars retrieves all holiday calendars.
	ListCalendars(ctx context.Context) ([]*HolidayCalendar, error)

	// UpdateCalendar updates an existing holiday calendar.
	UpdateCalendar(ctx context.Context, c *HolidayCalendar) (*HolidayCalendar, error)

	// DeleteCalendar deletes a holiday calendar.
	DeleteCalendar(ctx context.Context, id uuid.UUID) error
}

// InMemoryScheduleStore is an in-memory implementation of ScheduleStore.
type InMemoryScheduleStore struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]*Schedule
}

// NewInMemoryScheduleStore creates a new in-memory schedule store.
func NewInMemoryScheduleStore() *InMemoryScheduleStore {
	return &InMemoryScheduleStore{
		schedules: make(map[uuid.UUID]*Schedule),
	}
}

// CreateSchedule creates a new schedule.
func (s *InMemoryScheduleStore) CreateSchedule(ctx context.Context, sched *Schedule) (*Schedule, error) {
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sched.ID = uuid.New()
	sched.CreatedAt = time.Now()
	sched.UpdatedAt = sched.CreatedAt

	stored := copySchedule(sched)
	s.schedules[sched.ID] = stored

	return sched, nil
}

// GetSchedule retrieves a schedule by ID.
func (s *InMemoryScheduleStore) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}

	return copySchedule(sched), nil
}

// ListSchedules retrieves all schedules.
func (s *InMemoryScheduleStore) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		result = append(result, copySchedule(sched))
	}
	return result, nil
}

// UpdateSchedule updates an existing schedule.
func (s *InMemoryScheduleStore) UpdateSchedule(ctx context.Context, sched *Schedule) (*Schedule, error) {
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.schedules[sched.ID]
	if !ok {
		return nil, ErrNotFound
	}

	sched.CreatedAt = existing.CreatedAt
	sched.UpdatedAt = time.Now()
	s.schedules[sched.ID] = copySchedule(sched)

	return sched, nil
}

// DeleteSchedule deletes a schedule.
func (s *InMemoryScheduleStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.schedules, id)
	return nil
}

// InMemoryHolidayCalendarStore is an in-memory implementation of HolidayCalendarStore.
type InMemoryHolidayCalendarStore struct {
	mu        sync.RWMutex
	calendars map[uuid.UUID]*HolidayCalendar
}

// NewInMemoryHolidayCalendarStore creates a new in-memory holiday calendar store.
func NewInMemoryHolidayCalendarStore() *InMemoryHolidayCalendarStore {
	return &InMemoryHolidayCalendarStore{
		calendars: make(map[uuid.UUID]*HolidayCalendar),
	}
}

// CreateCalendar creates a new holiday calendar.
func (s *InMemoryHolidayCalendarStore) CreateCalendar(ctx context.Context, c *HolidayCalendar) (*HolidayCalendar, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	s.calendars[c.ID] = copyCalendar(c)

	return c, nil
}

// GetCalendar retrieves a holiday calendar by ID.
func (s *InMemoryHolidayCalendarStore) GetCalendar(ctx context.Context, id uuid.UUID) (*HolidayCalendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.calendars[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCalendar(c), nil
}

// ListCalendars retrieves all holiday calendars.
func (s *InMemoryHolidayCalendarStore) ListCalendars(ctx context.Context) ([]*HolidayCalendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*HolidayCalendar, 0, len(s.calendars))
	for _, c := range s.calendars {
		result = append(result, copyCalendar(c))
	}
	return result, nil
}

// UpdateCalendar updates an existing holiday calendar.
func (s *InMemoryHolidayCalendarStore) UpdateCalendar(ctx context.Context, c *HolidayCalendar) (*HolidayCalendar, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.calendars[c.ID]
	if !ok {
		return nil, ErrNotFound
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	s.calendars[c.ID] = copyCalendar(c)

	return c, nil
}

// DeleteCalendar deletes a holiday calendar.
func (s *InMemoryHolidayCalendarStore) DeleteCalendar(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.calendars, id)
	return nil
}

// copySchedule creates a deep copy to avoid external mutations.
func copySchedule(s *Schedule) *Schedule {
	copied := *s
	copied.DayRules = append([]DayRule(nil), s.DayRules...)
	copied.Breaks = make([]BreakRule, len(s.Breaks))
	for i, br := range s.Breaks {
		copied.Breaks[i] = br
		copied.Breaks[i].Days = append([]int(nil), br.Days...)
	}
	return &copied
}

// copyCalendar creates a deep copy to avoid external mutations.
func copyCalendar(c *HolidayCalendar) *HolidayCalendar {
	copied := *c
	copied.Holidays = append([]HolidayDate(nil), c.Holidays...)
	return &copied
}

// Verify interface conformance.
var (
	_ ScheduleStore        = (*InMemoryScheduleStore)(nil)
	_ HolidayCalendarStore = (*InMemoryHolidayCalendarStore)(nil)
)
