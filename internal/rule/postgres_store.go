package rule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the PostgreSQL implementation of Store. Condition sets
// and recipient specs are stored as JSONB columns.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL rule store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const slaRuleColumns = `
	id, name, priority_order, min_tat_minutes, avg_tat_minutes, max_tat_minutes,
	conditions, vip_override, schedule_id, holiday_calendar_id, pause_statuses,
	warning_ratio, is_active, created_at, updated_at
`

// ruleConditions is the JSONB shape of the per-dimension condition sets.
type ruleConditions struct {
	Priorities       []string `json:"priorities,omitempty"`
	TicketTypes      []string `json:"ticketTypes,omitempty"`
	Channels         []string `json:"channels,omitempty"`
	AssetImportances []string `json:"assetImportances,omitempty"`
}

// CreateRule creates a new SLA rule.
func (s *PostgresStore) CreateRule(ctx context.Context, r *SLARule) (*SLARule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	conditions, pauses, err := marshalRuleJSON(r)
	if err != nil {
		return nil, err
	}

	r.ID = uuid.New()
	query := `
		INSERT INTO sla_rules (id, name, priority_order, min_tat_minutes, avg_tat_minutes,
			max_tat_minutes, conditions, vip_override, schedule_id, holiday_calendar_id,
			pause_statuses, warning_ratio, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		r.ID, r.Name, r.PriorityOrder, r.MinTATMinutes, r.AvgTATMinutes, r.MaxTATMinutes,
		conditions, r.VIPOverride, r.ScheduleID, r.HolidayCalendarID, pauses,
		r.WarningRatio, r.IsActive,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert sla rule: %w", err)
	}

	return r, nil
}

// GetRule retrieves an SLA rule by ID.
func (s *PostgresStore) GetRule(ctx context.Context, id uuid.UUID) (*SLARule, error) {
	query := "SELECT " + slaRuleColumns + " FROM sla_rules WHERE id = $1"
	return scanRule(s.pool.QueryRow(ctx, query, id))
}

// ListActiveRules retrieves all active SLA rules ordered by priority.
func (s *PostgresStore) ListActiveRules(ctx context.Context) ([]*SLARule, error) {
	query := "SELECT " + slaRuleColumns + " FROM sla_rules WHERE is_active ORDER BY priority_order, id"
	return s.queryRules(ctx, query)
}

// ListRules retrieves all SLA rules ordered by priority.
func (s *PostgresStore) ListRules(ctx context.Context) ([]*SLARule, error) {
	query := "SELECT " + slaRuleColumns + " FROM sla_rules ORDER BY priority_order, id"
	return s.queryRules(ctx, query)
}

func (s *PostgresStore) queryRules(ctx context.Context, query string, args ...any) ([]*SLARule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sla rules: %w", err)
	}
	defer rows.Close()

	var result []*SLARule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// UpdateRule updates an existing SLA rule.
func (s *PostgresStore) UpdateRule(ctx context.Context, r *SLARule) (*SLARule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	conditions, pauses, err := marshalRuleJSON(r)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE sla_rules
		SET name = $2, priority_order = $3, min_tat_minutes = $4, avg_tat_minutes = $5,
			max_tat_minutes = $6, conditions = $7, vip_override = $8, schedule_id = $9,
			holiday_calendar_id = $10, pause_statuses = $11, warning_ratio = $12,
			is_active = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		r.ID, r.Name, r.PriorityOrder, r.MinTATMinutes, r.AvgTATMinutes, r.MaxTATMinutes,
		conditions, r.VIPOverride, r.ScheduleID, r.HolidayCalendarID, pauses,
		r.WarningRatio, r.IsActive,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update sla rule: %w", err)
	}

	return r, nil
}

// DeleteRule deletes an SLA rule and its escalation rules.
func (s *PostgresStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM escalation_rules WHERE sla_rule_id = $1", id); err != nil {
		return fmt.Errorf("delete escalation rules: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM sla_rules WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete sla rule: %w", err)
	}

	return tx.Commit(ctx)
}

const escalationColumns = `
	id, sla_rule_id, level, trigger_type, reference_threshold, trigger_offset_minutes,
	repeat_interval_minutes, max_repeat_count, recipients, include_ticket_details,
	notification_template, is_active, created_at, updated_at
`

// CreateEscalation creates a new escalation rule under an SLA rule.
func (s *PostgresStore) CreateEscalation(ctx context.Context, e *EscalationRule) (*EscalationRule, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	recipients, err := json.Marshal(e.Recipients)
	if err != nil {
		return nil, fmt.Errorf("marshal recipients: %w", err)
	}

	e.ID = uuid.New()
	query := `
		INSERT INTO escalation_rules (id, sla_rule_id, level, trigger_type, reference_threshold,
			trigger_offset_minutes, repeat_interval_minutes, max_repeat_count, recipients,
			include_ticket_details, notification_template, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		e.ID, e.SLARuleID, e.Level, e.TriggerType, e.ReferenceThreshold,
		e.TriggerOffsetMinutes, e.RepeatIntervalMinutes, e.MaxRepeatCount, recipients,
		e.IncludeTicketDetails, nullIfEmpty(e.NotificationTemplate), e.IsActive,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert escalation rule: %w", err)
	}

	return e, nil
}

// ListEscalations retrieves the escalation rules for an SLA rule ordered by level.
func (s *PostgresStore) ListEscalations(ctx context.Context, slaRuleID uuid.UUID) ([]*EscalationRule, error) {
	query := "SELECT " + escalationColumns + " FROM escalation_rules WHERE sla_rule_id = $1 ORDER BY level, id"
	rows, err := s.pool.Query(ctx, query, slaRuleID)
	if err != nil {
		return nil, fmt.Errorf("list escalation rules: %w", err)
	}
	defer rows.Close()

	var result []*EscalationRule
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// UpdateEscalation updates an existing escalation rule.
func (s *PostgresStore) UpdateEscalation(ctx context.Context, e *EscalationRule) (*EscalationRule, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	recipients, err := json.Marshal(e.Recipients)
	if err != nil {
		return nil, fmt.Errorf("marshal recipients: %w", err)
	}

	query := `
		UPDATE escalation_rules
		SET level = $2, trigger_type = $3, reference_threshold = $4, trigger_offset_minutes = $5,
			repeat_interval_minutes = $6, max_repeat_count = $7, recipients = $8,
			include_ticket_details = $9, notification_template = $10, is_active = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		e.ID, e.Level, e.TriggerType, e.ReferenceThreshold, e.TriggerOffsetMinutes,
		e.RepeatIntervalMinutes, e.MaxRepeatCount, recipients, e.IncludeTicketDetails,
		nullIfEmpty(e.NotificationTemplate), e.IsActive,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update escalation rule: %w", err)
	}

	return e, nil
}

// DeleteEscalation deletes an escalation rule.
func (s *PostgresStore) DeleteEscalation(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM escalation_rules WHERE id = $1", id)
	return err
}

func marshalRuleJSON(r *SLARule) (conditions, pauses []byte, err error) {
	conditions, err = json.Marshal(ruleConditions{
		Priorities:       r.Priorities,
		TicketTypes:      r.TicketTypes,
		Channels:         r.Channels,
		AssetImportances: r.AssetImportances,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}

	pauses, err = json.Marshal(r.PauseStatuses)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal pause statuses: %w", err)
	}
	return conditions, pauses, nil
}

func scanRule(row pgx.Row) (*SLARule, error) {
	var (
		r          SLARule
		conditions []byte
		pauses     []byte
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.PriorityOrder, &r.MinTATMinutes, &r.AvgTATMinutes, &r.MaxTATMinutes,
		&conditions, &r.VIPOverride, &r.ScheduleID, &r.HolidayCalendarID, &pauses,
		&r.WarningRatio, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sla rule: %w", err)
	}

	// Malformed condition sets degrade to "any" rather than failing recompute.
	var c ruleConditions
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &c); err == nil {
			r.Priorities = c.Priorities
			r.TicketTypes = c.TicketTypes
			r.Channels = c.Channels
			r.AssetImportances = c.AssetImportances
		}
	}
	if len(pauses) > 0 {
		_ = json.Unmarshal(pauses, &r.PauseStatuses)
	}

	return &r, nil
}

func scanEscalation(row pgx.Row) (*EscalationRule, error) {
	var (
		e          EscalationRule
		recipients []byte
		template   *string
	)
	err := row.Scan(
		&e.ID, &e.SLARuleID, &e.Level, &e.TriggerType, &e.ReferenceThreshold,
		&e.TriggerOffsetMinutes, &e.RepeatIntervalMinutes, &e.MaxRepeatCount, &recipients,
		&e.IncludeTicketDetails, &template, &e.IsActive, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan escalation rule: %w", err)
	}

	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &e.Recipients); err != nil {
			return nil, fmt.Errorf("unmarshal recipients: %w", err)
		}
	}
	if template != nil {
		e.NotificationTemplate = *template
	}

	return &e, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Store = (*PostgresStore)(nil)
