package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresScheduleStore is the PostgreSQL implementation of ScheduleStore.
// Day rules and breaks are stored as JSONB columns.
type PostgresScheduleStore struct {
	pool *pgxpool.Pool
}

// NewPostgresScheduleStore creates a new PostgreSQL schedule store.
func NewPostgresScheduleStore(pool *pgxpool.Pool) *PostgresScheduleStore {
	return &PostgresScheduleStore{pool: pool}
}

// CreateSchedule creates a new schedule.
func (s *PostgresScheduleStore) CreateSchedule(ctx context.Context, sched *Schedule) (*Schedule, error) {
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	dayRules, err := json.Marshal(sched.DayRules)
	if err != nil {
		return nil, fmt.Errorf("marshal day rules: %w", err)
	}
	breaks, err := json.Marshal(sched.Breaks)
	if err != nil {
		return nil, fmt.Errorf("marshal breaks: %w", err)
	}

	sched.ID = uuid.New()
	query := `
		INSERT INTO business_hours_schedules (id, name, timezone, day_rules, breaks)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query, sched.ID, sched.Name, sched.Timezone, dayRules, breaks).
		Scan(&sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}

	return sched, nil
}

// GetSchedule retrieves a schedule by ID.
func (s *PostgresScheduleStore) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	query := `
		SELECT id, name, timezone, day_rules, breaks, created_at, updated_at
		FROM business_hours_schedules
		WHERE id = $1
	`
	return scanSchedule(s.pool.QueryRow(ctx, query, id))
}

// ListSchedules retrieves all schedules ordered by name.
func (s *PostgresScheduleStore) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	query := `
		SELECT id, name, timezone, day_rules, breaks, created_at, updated_at
		FROM business_hours_schedules
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var result []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sched)
	}
	return result, rows.Err()
}

// UpdateSchedule updates an existing schedule.
func (s *PostgresScheduleStore) UpdateSchedule(ctx context.Context, sched *Schedule) (*Schedule, error) {
	if err := sched.Validate(); err != nil {
		return nil, err
	}

	dayRules, err := json.Marshal(sched.DayRules)
	if err != nil {
		return nil, fmt.Errorf("marshal day rules: %w", err)
	}
	breaks, err := json.Marshal(sched.Breaks)
	if err != nil {
		return nil, fmt.Errorf("marshal breaks: %w", err)
	}

	query := `
		UPDATE business_hours_schedules
		SET name = $2, timezone = $3, day_rules = $4, breaks = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query, sched.ID, sched.Name, sched.Timezone, dayRules, breaks).
		Scan(&sched.CreatedAt, &sched.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	return sched, nil
}

// DeleteSchedule deletes a schedule.
func (s *PostgresScheduleStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM business_hours_schedules WHERE id = $1", id)
	return err
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var (
		sched    Schedule
		dayRules []byte
		breaks   []byte
	)
	err := row.Scan(&sched.ID, &sched.Name, &sched.Timezone, &dayRules, &breaks, &sched.CreatedAt, &sched.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if err := json.Unmarshal(dayRules, &sched.DayRules); err != nil {
		return nil, fmt.Errorf("unmarshal day rules: %w", err)
	}
	if len(breaks) > 0 {
		if err := json.Unmarshal(breaks, &sched.Breaks); err != nil {
			return nil, fmt.Errorf("unmarshal breaks: %w", err)
		}
	}

	return &sched, nil
}

// PostgresHolidayCalendarStore is the PostgreSQL implementation of HolidayCalendarStore.
type PostgresHolidayCalendarStore struct {
	pool *pgxpool.Pool
}

// NewPostgresHolidayCalendarStore creates a new PostgreSQL holiday calendar store.
func NewPostgresHolidayCalendarStore(pool *pgxpool.Pool) *PostgresHolidayCalendarStore {
	return &PostgresHolidayCalendarStore{pool: pool}
}

// CreateCalendar creates a new holiday calendar.
func (s *PostgresHolidayCalendarStore) CreateCalendar(ctx context.Context, c *HolidayCalendar) (*HolidayCalendar, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	holidays, err := json.Marshal(c.Holidays)
	if err != nil {
		return nil, fmt.Errorf("marshal holidays: %w", err)
	}

	c.ID = uuid.New()
	query := `
		INSERT INTO holiday_calendars (id, name, year, holidays)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query, c.ID, c.Name, c.Year, holidays).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert holiday calendar: %w", err)
	}

	return c, nil
}

// GetCalendar retrieves a holiday calendar by ID.
func (s *PostgresHolidayCalendarStore) GetCalendar(ctx context.Context, id uuid.UUID) (*HolidayCalendar, error) {
	query := `
		SELECT id, name, year, holidays, created_at, updated_at
		FROM holiday_calendars
		WHERE id = $1
	`
	return scanCalendar(s.pool.QueryRow(ctx, query, id))
}

// ListCalendars retrieves all holiday calendars ordered by year and name.
func (s *PostgresHolidayCalendarStore) ListCalendars(ctx context.Context) ([]*HolidayCalendar, error) {
	query := `
		SELECT id, name, year, holidays, created_at, updated_at
		FROM holiday_calendars
		ORDER BY year, name
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list holiday calendars: %w", err)
	}
	defer rows.Close()

	var result []*HolidayCalendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// UpdateCalendar updates an existing holiday calendar.
func (s *PostgresHolidayCalendarStore) UpdateCalendar(ctx context.Context, c *HolidayCalendar) (*HolidayCalendar, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	holidays, err := json.Marshal(c.Holidays)
	if err != nil {
		return nil, fmt.Errorf("marshal holidays: %w", err)
	}

	query := `
		UPDATE holiday_calendars
		SET name = $2, year = $3, holidays = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query, c.ID, c.Name, c.Year, holidays).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update holiday calendar: %w", err)
	}

	return c, nil
}

// DeleteCalendar deletes a holiday calendar.
func (s *PostgresHolidayCalendarStore) DeleteCalendar(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM holiday_calendars WHERE id = $1", id)
	return err
}

func scanCalendar(row pgx.Row) (*HolidayCalendar, error) {
	var (
		c        HolidayCalendar
		holidays []byte
	)
	err := row.Scan(&c.ID, &c.Name, &c.Year, &holidays, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan holiday calendar: %w", err)
	}

	if len(holidays) > 0 {
		if err := json.Unmarshal(holidays, &c.Holidays); err != nil {
			return nil, fmt.Errorf("unmarshal holidays: %w", err)
		}
	}

	return &c, nil
}

var (
	_ ScheduleStore        = (*PostgresScheduleStore)(nil)
	_ HolidayCalendarStore = (*PostgresHolidayCalendarStore)(nil)
)
