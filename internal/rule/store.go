package rule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a rule does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the interface for SLA and escalation rule persistence.
type Store interface {
	// CreateRule creates a new SLA rule.
	CreateRule(ctx context.Context, r *SLARule) (*SLARule, error)

	// GetRule retrieves an SLA rule by ID.
	GetRule(ctx context.Context, id uuid.UUID) (*SLARule, error)

	// ListActiveRules retrieves all active SLA rules ordered by priority.
	ListActiveRules(ctx context.Context) ([]*SLARule, error)

	// ListRules retrieves all SLA rules ordered by priority.
	ListRules(ctx context.Context) ([]*SLARule, error)

	// UpdateRule updates an existing SLA rule.
	UpdateRule(ctx context.Context, r *SLARule) (*SLARule, error)

	// DeleteRule deletes an SLA rule and its escalation rules.
	DeleteRule(ctx context.Context, id uuid.UUID) error

	// CreateEscalation creates a new escalation rule under an SLA rule.
	CreateEscalation(ctx context.Context, e *EscalationRule) (*EscalationRule, error)

	// ListEscalations retrieves the escalation rules for an SLA rule ordered by level.
	ListEscalations(ctx context.Context, slaRuleID uuid.UUID) ([]*EscalationRule, error)

	// UpdateEscalation updates an existing escalation rule.
	UpdateEscalation(ctx context.Context, e *EscalationRule) (*EscalationRule, error)

	// DeleteEscalation deletes an escalation rule.
	DeleteEscalation(ctx context.Context, id uuid.UUID) error
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	mu          sync.RWMutex
	rules       map[uuid.UUID]*SLARule
	escalations map[uuid.UUID]*EscalationRule
}

// NewInMemoryStore creates a new in-memory rule store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules:       make(map[uuid.UUID]*SLARule),
		escalations: make(map[uuid.UUID]*EscalationRule),
	}
}

// CreateRule creates a new SLA rule.
func (s *InMemoryStore) CreateRule(ctx context.Context, r *SLARule) (*SLARule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	s.rules[r.ID] = copyRule(r)

	return r, nil
}

// GetRule retrieves an SLA rule by ID.
func (s *InMemoryStore) GetRule(ctx context.Context, id uuid.UUID) (*SLARule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRule(r), nil
}

// ListActiveRules retrieves all active SLA rules ordered by priority.
func (s *InMemoryStore) ListActiveRules(ctx context.Context) ([]*SLARule, error) {
	return s.list(true)
}

// ListRules retrieves all SLA rules ordered by priority.
func (s *InMemoryStore) ListRules(ctx context.Context) ([]*SLARule, error) {
	return s.list(false)
}

func (s *InMemoryStore) list(activeOnly bool) ([]*SLARule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SLARule, 0, len(s.rules))
	for _, r := range s.rules {
		if activeOnly && !r.IsActive {
			continue
		}
		result = append(result, copyRule(r))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].PriorityOrder != result[j].PriorityOrder {
			return result[i].PriorityOrder < result[j].PriorityOrder
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return result, nil
}

// UpdateRule updates an existing SLA rule.
func (s *InMemoryStore) UpdateRule(ctx context.Context, r *SLARule) (*SLARule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok {
		return nil, ErrNotFound
	}

	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	s.rules[r.ID] = copyRule(r)

	return r, nil
}

// DeleteRule deletes an SLA rule and its escalation rules.
func (s *InMemoryStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rules, id)
	for eid, e := range s.escalations {
		if e.SLARuleID == id {
			delete(s.escalations, eid)
		}
	}
	return nil
}

// CreateEscalation creates a new escalation rule under an SLA rule.
func (s *InMemoryStore) CreateEscalation(ctx context.Context, e *EscalationRule) (*EscalationRule, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[e.SLARuleID]; !ok {
		return nil, ErrNotFound
	}

	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	s.escalations[e.ID] = copyEscalation(e)

	return e, nil
}

// ListEscalations retrieves the escalation rules for an SLA rule ordered by level.
func (s *InMemoryStore) ListEscalations(ctx context.Context, slaRuleID uuid.UUID) ([]*EscalationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*EscalationRule
	for _, e := range s.escalations {
		if e.SLARuleID == slaRuleID {
			result = append(result, copyEscalation(e))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return result, nil
}

// UpdateEscalation updates an existing escalation rule.
func (s *InMemoryStore) UpdateEscalation(ctx context.Context, e *EscalationRule) (*EscalationRule, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.escalations[e.ID]
	if !ok {
		return nil, ErrNotFound
	}

	e.CreatedAt = existing.CreatedAt
	e.UpdatedAt = time.Now()
	s.escalations[e.ID] = copyEscalation(e)

	return e, nil
}

// DeleteEscalation deletes an escalation rule.
func (s *InMemoryStore) DeleteEscalation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.escalations, id)
	return nil
}

// copyRule creates a deep copy to avoid external mutations.
func copyRule(r *SLARule) *SLARule {
	copied := *r
	copied.Priorities = append([]string(nil), r.Priorities...)
	copied.TicketTypes = append([]string(nil), r.TicketTypes...)
	copied.Channels = append([]string(nil), r.Channels...)
	copied.AssetImportances = append([]string(nil), r.AssetImportances...)
	copied.PauseStatuses = append([]string(nil), r.PauseStatuses...)
	if r.ScheduleID != nil {
		id := *r.ScheduleID
		copied.ScheduleID = &id
	}
	if r.HolidayCalendarID != nil {
		id := *r.HolidayCalendarID
		copied.HolidayCalendarID = &id
	}
	return &copied
}

// copyEscalation creates a deep copy to avoid external mutations.
func copyEscalation(e *EscalationRule) *EscalationRule {
	copied := *e
	if e.RepeatIntervalMinutes != nil {
		v := *e.RepeatIntervalMinutes
		copied.RepeatIntervalMinutes = &v
	}
	if e.MaxRepeatCount != nil {
		v := *e.MaxRepeatCount
		copied.MaxRepeatCount = &v
	}
	return &copied
}

var _ Store = (*InMemoryStore)(nil)
