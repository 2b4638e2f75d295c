package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecordStore is the PostgreSQL implementation of RecordStore.
// Fire-log entries live in their own table with a primary key on
// (ticket_id, escalation_rule_id, repeat_index), which makes appends
// naturally idempotent.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRecordStore creates a new PostgreSQL record store.
func NewPostgresRecordStore(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

const recordColumns = `
	ticket_id, sla_rule_id, start_time, business_elapsed_minutes, state,
	pause_started_at, paused_minutes, business_paused_minutes, status,
	resolved_at, final_status, created_at, updated_at
`

// CreateRecord stores a new tracking record.
func (s *PostgresRecordStore) CreateRecord(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO sla_tracking_records (ticket_id, sla_rule_id, start_time,
			business_elapsed_minutes, state, pause_started_at, paused_minutes,
			business_paused_minutes, status, resolved_at, final_status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.TicketID, rec.SLARuleID, rec.StartTime, rec.BusinessElapsedMinutes,
		rec.State, rec.PauseStartedAt, rec.PausedMinutes, rec.BusinessPausedMinutes,
		rec.Status, rec.ResolvedAt, nullStatus(rec.FinalStatus), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("insert tracking record: %w", err)
	}
	return nil
}

// GetRecord retrieves the tracking record for a ticket, including its fire log.
func (s *PostgresRecordStore) GetRecord(ctx context.Context, ticketID string) (*Record, error) {
	query := "SELECT " + recordColumns + " FROM sla_tracking_records WHERE ticket_id = $1"
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, err
	}

	if err := s.loadFireLog(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecord persists the mutable fields of a record.
func (s *PostgresRecordStore) UpdateRecord(ctx context.Context, rec *Record) error {
	query := `
		UPDATE sla_tracking_records
		SET business_elapsed_minutes = $2, state = $3, pause_started_at = $4,
			paused_minutes = $5, business_paused_minutes = $6, status = $7,
			resolved_at = $8, final_status = $9, updated_at = $10
		WHERE ticket_id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		rec.TicketID, rec.BusinessElapsedMinutes, rec.State, rec.PauseStartedAt,
		rec.PausedMinutes, rec.BusinessPausedMinutes, rec.Status,
		rec.ResolvedAt, nullStatus(rec.FinalStatus), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tracking record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendFireLog appends an escalation fire-log entry.
func (s *PostgresRecordStore) AppendFireLog(ctx context.Context, ticketID string, entry FireLogEntry) error {
	query := `
		INSERT INTO escalation_fire_log (ticket_id, escalation_rule_id, repeat_index, fired_at, delivery_failed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ticket_id, escalation_rule_id, repeat_index) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		ticketID, entry.EscalationRuleID, entry.RepeatIndex, entry.FiredAt, entry.DeliveryFailed,
	)
	if err != nil {
		return fmt.Errorf("append fire log: %w", err)
	}
	return nil
}

// MarkDeliveryFailed flags an existing fire-log entry as undelivered.
func (s *PostgresRecordStore) MarkDeliveryFailed(ctx context.Context, ticketID string, escalationRuleID uuid.UUID, repeatIndex int) error {
	query := `
		UPDATE escalation_fire_log
		SET delivery_failed = TRUE
		WHERE ticket_id = $1 AND escalation_rule_id = $2 AND repeat_index = $3
	`
	tag, err := s.pool.Exec(ctx, query, ticketID, escalationRuleID, repeatIndex)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive retrieves all records that are not resolved.
func (s *PostgresRecordStore) ListActive(ctx context.Context) ([]*Record, error) {
	return s.List(ctx, ListFilter{States: []State{StateActive, StatePaused}})
}

// List retrieves records matching the filter. Fire logs are loaded for each
// returned record.
func (s *PostgresRecordStore) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	var (
		clauses []string
		args    []any
	)

	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, st := range filter.States {
			states[i] = string(st)
		}
		args = append(args, states)
		clauses = append(clauses, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.CreatedTo.IsZero() {
		args = append(args, filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := "SELECT " + recordColumns + " FROM sla_tracking_records"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tracking records: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range result {
		if err := s.loadFireLog(ctx, rec); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *PostgresRecordStore) loadFireLog(ctx context.Context, rec *Record) error {
	query := `
		SELECT escalation_rule_id, repeat_index, fired_at, delivery_failed
		FROM escalation_fire_log
		WHERE ticket_id = $1
		ORDER BY fired_at, repeat_index
	`
	rows, err := s.pool.Query(ctx, query, rec.TicketID)
	if err != nil {
		return fmt.Errorf("load fire log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry FireLogEntry
		if err := rows.Scan(&entry.EscalationRuleID, &entry.RepeatIndex, &entry.FiredAt, &entry.DeliveryFailed); err != nil {
			return fmt.Errorf("scan fire log: %w", err)
		}
		rec.FireLog = append(rec.FireLog, entry)
	}
	return rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec         Record
		finalStatus *string
	)
	err := row.Scan(
		&rec.TicketID, &rec.SLARuleID, &rec.StartTime, &rec.BusinessElapsedMinutes,
		&rec.State, &rec.PauseStartedAt, &rec.PausedMinutes, &rec.BusinessPausedMinutes,
		&rec.Status, &rec.ResolvedAt, &finalStatus, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tracking record: %w", err)
	}

	if finalStatus != nil {
		rec.FinalStatus = Status(*finalStatus)
	}
	return &rec, nil
}

func nullStatus(s Status) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

var _ RecordStore = (*PostgresRecordStore)(nil)
