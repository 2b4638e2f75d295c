package engine

import (
	"context"
	"time"

	"github.com/kneutral-org/sla-engine/internal/tracker"
)

// DashboardFilter narrows the records aggregated into a dashboard.
type DashboardFilter struct {
	// From/To bound record creation time; zero means unbounded.
	From time.Time
	To   time.Time
	// States limits aggregation to the given states; empty means all.
	States []tracker.State
}

// Dashboard aggregates compliance posture over the tracked tickets.
type Dashboard struct {
	TotalRecords    int `json:"totalRecords"`
	ActiveRecords   int `json:"activeRecords"`
	PausedRecords   int `json:"pausedRecords"`
	ResolvedRecords int `json:"resolvedRecords"`

	// ZoneCounts buckets unresolved records by current compliance zone.
	ZoneCounts map[tracker.Status]int `json:"zoneCounts"`

	// ResolvedByStatus buckets resolved records by final compliance status.
	ResolvedByStatus map[tracker.Status]int `json:"resolvedByStatus"`

	// ComplianceRate is the fraction of resolved tickets that closed without
	// breaching. Zero when nothing has resolved yet.
	ComplianceRate float64 `json:"complianceRate"`

	// BreachRate is the fraction of all records currently or finally
	// breached.
	BreachRate float64 `json:"breachRate"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// DashboardMetrics aggregates the tracked records matching the filter.
func (e *Engine) DashboardMetrics(ctx context.Context, filter DashboardFilter) (*Dashboard, error) {
	records, err := e.records.List(ctx, tracker.ListFilter{
		States:      filter.States,
		CreatedFrom: filter.From,
		CreatedTo:   filter.To,
	})
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		ZoneCounts:       make(map[tracker.Status]int),
		ResolvedByStatus: make(map[tracker.Status]int),
		GeneratedAt:      e.clock.Now(),
	}

	breached := 0
	compliant := 0
	for _, rec := range records {
		d.TotalRecords++
		switch rec.State {
		case tracker.StateActive:
			d.ActiveRecords++
			d.ZoneCounts[rec.Status]++
		case tracker.StatePaused:
			d.PausedRecords++
			d.ZoneCounts[rec.Status]++
		case tracker.StateResolved:
			d.ResolvedRecords++
			d.ResolvedByStatus[rec.FinalStatus]++
			if rec.FinalStatus != tracker.StatusBreached {
				compliant++
			}
		}

		if rec.Status == tracker.StatusBreached || rec.FinalStatus == tracker.StatusBreached {
			breached++
		}
	}

	if d.ResolvedRecords > 0 {
		d.ComplianceRate = float64(compliant) / float64(d.ResolvedRecords)
	}
	if d.TotalRecords > 0 {
		d.BreachRate = float64(breached) / float64(d.TotalRecords)
	}

	return d, nil
}
