package rule

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRule(name string, priorityOrder int, mutate func(*SLARule)) *SLARule {
	r := &SLARule{
		ID:            uuid.New(),
		Name:          name,
		PriorityOrder: priorityOrder,
		MinTATMinutes: 30,
		AvgTATMinutes: 120,
		MaxTATMinutes: 240,
		IsActive:      true,
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher(zerolog.Nop())

	attrs := TicketAttributes{
		TicketID:        "TKT-1001",
		Priority:        "high",
		TicketType:      "incident",
		Channel:         "email",
		AssetImportance: "critical",
	}

	t.Run("empty condition sets accept any ticket", func(t *testing.T) {
		r := newRule("catch-all", 100, nil)
		got := m.Match(attrs, []*SLARule{r})
		require.NotNil(t, got)
		assert.Equal(t, r.ID, got.ID)
	})

	t.Run("all dimensions must accept", func(t *testing.T) {
		r := newRule("high email incidents", 10, func(r *SLARule) {
			r.Priorities = []string{"high", "urgent"}
			r.TicketTypes = []string{"incident"}
			r.Channels = []string{"email", "phone"}
		})
		assert.NotNil(t, m.Match(attrs, []*SLARule{r}))

		mismatched := attrs
		mismatched.Channel = "chat"
		assert.Nil(t, m.Match(mismatched, []*SLARule{r}))
	})

	t.Run("values are ORed within a dimension", func(t *testing.T) {
		r := newRule("multi-priority", 10, func(r *SLARule) {
			r.Priorities = []string{"low", "high"}
		})

		low := attrs
		low.Priority = "low"
		assert.NotNil(t, m.Match(low, []*SLARule{r}))

		medium := attrs
		medium.Priority = "medium"
		assert.Nil(t, m.Match(medium, []*SLARule{r}))
	})

	t.Run("inactive rules never match", func(t *testing.T) {
		r := newRule("disabled", 1, func(r *SLARule) {
			r.IsActive = false
		})
		assert.Nil(t, m.Match(attrs, []*SLARule{r}))
	})

	t.Run("lowest priority order wins", func(t *testing.T) {
		general := newRule("general", 50, nil)
		specific := newRule("vip incidents", 5, func(r *SLARule) {
			r.TicketTypes = []string{"incident"}
		})

		got := m.Match(attrs, []*SLARule{general, specific})
		require.NotNil(t, got)
		assert.Equal(t, "vip incidents", got.Name)
	})

	t.Run("priority tie broken by lowest rule ID", func(t *testing.T) {
		a := newRule("rule-a", 10, func(r *SLARule) {
			r.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
		})
		b := newRule("rule-b", 10, func(r *SLARule) {
			r.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
		})

		got := m.Match(attrs, []*SLARule{b, a})
		require.NotNil(t, got)
		assert.Equal(t, a.ID, got.ID)

		// Order of the input slice must not matter.
		got = m.Match(attrs, []*SLARule{a, b})
		require.NotNil(t, got)
		assert.Equal(t, a.ID, got.ID)
	})

	t.Run("VIP override requires a VIP ticket", func(t *testing.T) {
		r := newRule("vip lane", 1, func(r *SLARule) {
			r.VIPOverride = true
		})

		assert.Nil(t, m.Match(attrs, []*SLARule{r}))

		vip := attrs
		vip.VIP = true
		assert.NotNil(t, m.Match(vip, []*SLARule{r}))
	})

	t.Run("no rules yields nil", func(t *testing.T) {
		assert.Nil(t, m.Match(attrs, nil))
	})
}

func TestSLARuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SLARule)
		wantErr bool
	}{
		{name: "valid", mutate: nil},
		{name: "missing name", mutate: func(r *SLARule) { r.Name = "" }, wantErr: true},
		{name: "zero min TAT", mutate: func(r *SLARule) { r.MinTATMinutes = 0 }, wantErr: true},
		{name: "min above avg", mutate: func(r *SLARule) { r.MinTATMinutes = 200 }, wantErr: true},
		{name: "avg above max", mutate: func(r *SLARule) { r.AvgTATMinutes = 500 }, wantErr: true},
		{name: "equal thresholds allowed", mutate: func(r *SLARule) {
			r.MinTATMinutes = 60
			r.AvgTATMinutes = 60
			r.MaxTATMinutes = 60
		}},
		{name: "warning ratio above one", mutate: func(r *SLARule) { r.WarningRatio = 1.5 }, wantErr: true},
		{name: "warning ratio in range", mutate: func(r *SLARule) { r.WarningRatio = 0.8 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRule("test rule", 1, tt.mutate)
			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEscalationRuleValidate(t *testing.T) {
	interval := 60
	repeats := 3

	valid := func() *EscalationRule {
		return &EscalationRule{
			SLARuleID:             uuid.New(),
			Level:                 1,
			TriggerType:           TriggerBreached,
			ReferenceThreshold:    ReferenceMaxTAT,
			RepeatIntervalMinutes: &interval,
			MaxRepeatCount:        &repeats,
			Recipients:            RecipientSpec{RecipientType: "team", NumberOfRecipients: 2},
			IsActive:              true,
		}
	}

	assert.NoError(t, valid().Validate())

	t.Run("level must be positive", func(t *testing.T) {
		e := valid()
		e.Level = 0
		assert.Error(t, e.Validate())
	})

	t.Run("unknown trigger type", func(t *testing.T) {
		e := valid()
		e.TriggerType = "paged"
		assert.Error(t, e.Validate())
	})

	t.Run("unknown reference threshold", func(t *testing.T) {
		e := valid()
		e.ReferenceThreshold = "min_tat"
		assert.Error(t, e.Validate())
	})

	t.Run("max repeats without interval", func(t *testing.T) {
		e := valid()
		e.RepeatIntervalMinutes = nil
		assert.Error(t, e.Validate())
	})

	t.Run("zero interval", func(t *testing.T) {
		e := valid()
		zero := 0
		e.RepeatIntervalMinutes = &zero
		assert.Error(t, e.Validate())
	})

	t.Run("recipients required", func(t *testing.T) {
		e := valid()
		e.Recipients.NumberOfRecipients = 0
		assert.Error(t, e.Validate())
	})
}

func TestSLARulePausesOn(t *testing.T) {
	r := newRule("pausing rule", 1, func(r *SLARule) {
		r.PauseStatuses = []string{"pending_customer", "on_hold"}
	})

	assert.True(t, r.PausesOn("pending_customer"))
	assert.True(t, r.PausesOn("on_hold"))
	assert.False(t, r.PausesOn("open"))

	empty := newRule("no pauses", 1, nil)
	assert.False(t, empty.PausesOn("on_hold"))
}
