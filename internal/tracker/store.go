package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store errors.
var (
	// ErrNotFound is returned when no tracking record exists for a ticket.
	ErrNotFound = errors.New("tracking record not found")
	// ErrDuplicate is returned when a record already exists for a ticket;
	// a tracking record is created exactly once per ticket.
	ErrDuplicate = errors.New("tracking record already exists")
)

// ListFilter narrows List results.
type ListFilter struct {
	// States limits results to the given states; empty means all.
	States []State
	// CreatedFrom/CreatedTo bound the record creation time; zero means unbounded.
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// RecordStore defines the interface for tracking record persistence.
type RecordStore interface {
	// CreateRecord stores a new tracking record. Returns ErrDuplicate when
	// the ticket is already tracked.
	CreateRecord(ctx context.Context, rec *Record) error

	// GetRecord retrieves the tracking record for a ticket.
	GetRecord(ctx context.Context, ticketID string) (*Record, error)

	// UpdateRecord persists the mutable fields of a record.
	UpdateRecord(ctx context.Context, rec *Record) error

	// AppendFireLog appends an escalation fire-log entry. Appending an
	// already-present (rule, repeat index) pair is a no-op.
	AppendFireLog(ctx context.Context, ticketID string, entry FireLogEntry) error

	// MarkDeliveryFailed flags an existing fire-log entry whose delivery
	// did not complete.
	MarkDeliveryFailed(ctx context.Context, ticketID string, escalationRuleID uuid.UUID, repeatIndex int) error

	// ListActive retrieves all records that are not resolved.
	ListActive(ctx context.Context) ([]*Record, error)

	// List retrieves records matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
}

// InMemoryRecordStore is an in-memory implementation of RecordStore.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRecordStore creates a new in-memory record store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{
		records: make(map[string]*Record),
	}
}

// CreateRecord stores a new tracking record.
func (s *InMemoryRecordStore) CreateRecord(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.TicketID]; ok {
		return ErrDuplicate
	}
	s.records[rec.TicketID] = copyRecord(rec)
	return nil
}

// GetRecord retrieves the tracking record for a ticket.
func (s *InMemoryRecordStore) GetRecord(ctx context.Context, ticketID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// UpdateRecord persists the mutable fields of a record.
func (s *InMemoryRecordStore) UpdateRecord(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[rec.TicketID]
	if !ok {
		return ErrNotFound
	}

	stored := copyRecord(rec)
	stored.FireLog = existing.FireLog
	s.records[rec.TicketID] = stored
	return nil
}

// AppendFireLog appends an escalation fire-log entry.
func (s *InMemoryRecordStore) AppendFireLog(ctx context.Context, ticketID string, entry FireLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ticketID]
	if !ok {
		return ErrNotFound
	}
	if rec.HasFired(entry.EscalationRuleID, entry.RepeatIndex) {
		return nil
	}
	rec.FireLog = append(rec.FireLog, entry)
	return nil
}

// MarkDeliveryFailed flags an existing fire-log entry as undelivered.
func (s *InMemoryRecordStore) MarkDeliveryFailed(ctx context.Context, ticketID string, escalationRuleID uuid.UUID, repeatIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ticketID]
	if !ok {
		return ErrNotFound
	}
	for i := range rec.FireLog {
		if rec.FireLog[i].EscalationRuleID == escalationRuleID && rec.FireLog[i].RepeatIndex == repeatIndex {
			rec.FireLog[i].DeliveryFailed = true
			return nil
		}
	}
	return ErrNotFound
}

// ListActive retrieves all records that are not resolved.
func (s *InMemoryRecordStore) ListActive(ctx context.Context) ([]*Record, error) {
	return s.List(ctx, ListFilter{States: []State{StateActive, StatePaused}})
}

// List retrieves records matching the filter.
func (s *InMemoryRecordStore) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Record
	for _, rec := range s.records {
		if !stateAccepted(filter.States, rec.State) {
			continue
		}
		if !filter.CreatedFrom.IsZero() && rec.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && !rec.CreatedAt.Before(filter.CreatedTo) {
			continue
		}
		result = append(result, copyRecord(rec))
	}
	return result, nil
}

func stateAccepted(states []State, s State) bool {
	if len(states) == 0 {
		return true
	}
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

// copyRecord creates a deep copy to avoid external mutations.
func copyRecord(rec *Record) *Record {
	copied := *rec
	if rec.PauseStartedAt != nil {
		t := *rec.PauseStartedAt
		copied.PauseStartedAt = &t
	}
	if rec.ResolvedAt != nil {
		t := *rec.ResolvedAt
		copied.ResolvedAt = &t
	}
	copied.FireLog = append([]FireLogEntry(nil), rec.FireLog...)
	return &copied
}

var _ RecordStore = (*InMemoryRecordStore)(nil)
