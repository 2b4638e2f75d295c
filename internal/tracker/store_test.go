package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(ticketID string, createdAt time.Time) *Record {
	return &Record{
		TicketID:  ticketID,
		SLARuleID: uuid.New(),
		StartTime: createdAt,
		State:     StateActive,
		Status:    StatusOnTrack,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestInMemoryRecordStore_CreateAndGet(t *testing.T) {
	s := NewInMemoryRecordStore()
	ctx := context.Background()
	now := mondayAt(9, 0)

	require.NoError(t, s.CreateRecord(ctx, newRecord("TKT-1", now)))

	t.Run("duplicate rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.CreateRecord(ctx, newRecord("TKT-1", now)), ErrDuplicate)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := s.GetRecord(ctx, "TKT-1")
		require.NoError(t, err)

		got.Status = StatusBreached
		again, err := s.GetRecord(ctx, "TKT-1")
		require.NoError(t, err)
		assert.Equal(t, StatusOnTrack, again.Status)
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := s.GetRecord(ctx, "TKT-404")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestInMemoryRecordStore_UpdatePreservesFireLog(t *testing.T) {
	s := NewInMemoryRecordStore()
	ctx := context.Background()
	now := mondayAt(9, 0)

	require.NoError(t, s.CreateRecord(ctx, newRecord("TKT-1", now)))

	escID := uuid.New()
	require.NoError(t, s.AppendFireLog(ctx, "TKT-1", FireLogEntry{
		EscalationRuleID: escID,
		RepeatIndex:      0,
		FiredAt:          now,
	}))

	// An update built from a stale read must not wipe delivery history.
	stale := newRecord("TKT-1", now)
	stale.BusinessElapsedMinutes = 42
	require.NoError(t, s.UpdateRecord(ctx, stale))

	got, err := s.GetRecord(ctx, "TKT-1")
	require.NoError(t, err)
	assert.Equal(t, 42, got.BusinessElapsedMinutes)
	require.Len(t, got.FireLog, 1)
	assert.True(t, got.HasFired(escID, 0))
}

func TestInMemoryRecordStore_AppendFireLogIdempotent(t *testing.T) {
	s := NewInMemoryRecordStore()
	ctx := context.Background()
	now := mondayAt(9, 0)

	require.NoError(t, s.CreateRecord(ctx, newRecord("TKT-1", now)))

	escID := uuid.New()
	entry := FireLogEntry{EscalationRuleID: escID, RepeatIndex: 1, FiredAt: now}
	require.NoError(t, s.AppendFireLog(ctx, "TKT-1", entry))
	require.NoError(t, s.AppendFireLog(ctx, "TKT-1", entry))

	got, err := s.GetRecord(ctx, "TKT-1")
	require.NoError(t, err)
	assert.Len(t, got.FireLog, 1)

	assert.ErrorIs(t, s.AppendFireLog(ctx, "TKT-404", entry), ErrNotFound)
}

func TestInMemoryRecordStore_MarkDeliveryFailed(t *testing.T) {
	s := NewInMemoryRecordStore()
	ctx := context.Background()
	now := mondayAt(9, 0)

	require.NoError(t, s.CreateRecord(ctx, newRecord("TKT-1", now)))

	escID := uuid.New()
	require.NoError(t, s.AppendFireLog(ctx, "TKT-1", FireLogEntry{EscalationRuleID: escID, RepeatIndex: 0, FiredAt: now}))

	require.NoError(t, s.MarkDeliveryFailed(ctx, "TKT-1", escID, 0))

	got, err := s.GetRecord(ctx, "TKT-1")
	require.NoError(t, err)
	require.Len(t, got.FireLog, 1)
	assert.True(t, got.FireLog[0].DeliveryFailed)

	assert.ErrorIs(t, s.MarkDeliveryFailed(ctx, "TKT-1", escID, 5), ErrNotFound)
	assert.ErrorIs(t, s.MarkDeliveryFailed(ctx, "TKT-404", escID, 0), ErrNotFound)
}

func TestInMemoryRecordStore_List(t *testing.T) {
	s := NewInMemoryRecordStore()
	ctx := context.Background()

	active := newRecord("TKT-1", mondayAt(9, 0))
	require.NoError(t, s.CreateRecord(ctx, active))

	paused := newRecord("TKT-2", mondayAt(10, 0))
	paused.State = StatePaused
	require.NoError(t, s.CreateRecord(ctx, paused))

	resolved := newRecord("TKT-3", mondayAt(11, 0))
	resolved.State = StateResolved
	require.NoError(t, s.CreateRecord(ctx, resolved))

	t.Run("list all", func(t *testing.T) {
		all, err := s.List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("list active excludes resolved", func(t *testing.T) {
		got, err := s.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, rec := range got {
			assert.NotEqual(t, StateResolved, rec.State)
		}
	})

	t.Run("state filter", func(t *testing.T) {
		got, err := s.List(ctx, ListFilter{States: []State{StateResolved}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "TKT-3", got[0].TicketID)
	})

	t.Run("creation time range", func(t *testing.T) {
		got, err := s.List(ctx, ListFilter{
			CreatedFrom: mondayAt(9, 30),
			CreatedTo:   mondayAt(10, 30),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "TKT-2", got[0].TicketID)
	})
}

func TestRecord_FiredCount(t *testing.T) {
	escA := uuid.New()
	escB := uuid.New()

	rec := &Record{
		FireLog: []FireLogEntry{
			{EscalationRuleID: escA, RepeatIndex: 0},
			{EscalationRuleID: escA, RepeatIndex: 1},
			{EscalationRuleID: escB, RepeatIndex: 0},
		},
	}

	assert.Equal(t, 2, rec.FiredCount(escA))
	assert.Equal(t, 1, rec.FiredCount(escB))
	assert.Equal(t, 0, rec.FiredCount(uuid.New()))
	assert.True(t, rec.HasFired(escA, 1))
	assert.False(t, rec.HasFired(escA, 2))
}
