// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicketsTracked tracks total tickets placed under SLA tracking by rule.
	TicketsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_tickets_tracked_total",
			Help: "Total tickets placed under SLA tracking by rule",
		},
		[]string{"rule"},
	)

	// TicketsUnmatched tracks tickets for which no SLA rule matched.
	TicketsUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sla_tickets_unmatched_total",
			Help: "Total tickets for which no SLA rule matched",
		},
	)

	// ZoneTransitions tracks compliance zone changes.
	ZoneTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_zone_transitions_total",
			Help: "Total compliance zone transitions by origin and destination zone",
		},
		[]string{"from", "to"},
	)

	// TicketsResolved tracks resolved tickets by final compliance status.
	TicketsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_tickets_resolved_total",
			Help: "Total tickets resolved by final compliance status",
		},
		[]string{"final_status"},
	)

	// TrackedRecords tracks the current number of tracking records by state.
	TrackedRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sla_tracked_records",
			Help: "Current number of tracking records by state",
		},
		[]string{"state"},
	)

	// EscalationsFired tracks escalation notifications emitted.
	EscalationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_escalations_fired_total",
			Help: "Total escalation events fired by level and trigger type",
		},
		[]string{"level", "trigger_type"},
	)

	// EscalationDeliveryFailures tracks escalations logged as fired but not delivered.
	EscalationDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sla_escalation_delivery_failures_total",
			Help: "Total escalation events whose recipient resolution or delivery failed",
		},
	)

	// SweepDuration tracks the duration of periodic recompute sweeps.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sla_sweep_duration_seconds",
			Help:    "Periodic sweep duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// SweepRecordsProcessed tracks records recomputed per sweep outcome.
	SweepRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_sweep_records_total",
			Help: "Total records processed by sweeps, by outcome",
		},
		[]string{"outcome"},
	)

	// HTTPRequestsTotal tracks total HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DatabaseQueryDuration tracks database query duration.
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// RegisterMetricsEndpoint registers the /metrics endpoint on a Gin router.
func RegisterMetricsEndpoint(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// MetricsHandler returns the Prometheus HTTP handler.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordTicketTracked records a ticket placed under tracking.
func RecordTicketTracked(rule string) {
	TicketsTracked.WithLabelValues(rule).Inc()
}

// RecordTicketUnmatched records a ticket with no matching rule.
func RecordTicketUnmatched() {
	TicketsUnmatched.Inc()
}

// RecordZoneTransition records a compliance zone change.
func RecordZoneTransition(from, to string) {
	ZoneTransitions.WithLabelValues(from, to).Inc()
}

// RecordTicketResolved records a resolved ticket.
func RecordTicketResolved(finalStatus string) {
	TicketsResolved.WithLabelValues(finalStatus).Inc()
}

// SetTrackedRecords sets the gauge of tracking records in a state.
func SetTrackedRecords(state string, count float64) {
	TrackedRecords.WithLabelValues(state).Set(count)
}

// RecordEscalationFired records an emitted escalation event.
func RecordEscalationFired(level, triggerType string) {
	EscalationsFired.WithLabelValues(level, triggerType).Inc()
}

// RecordEscalationDeliveryFailure records a fired-but-undelivered escalation.
func RecordEscalationDeliveryFailure() {
	EscalationDeliveryFailures.Inc()
}

// RecordSweep records a sweep duration.
func RecordSweep(seconds float64) {
	SweepDuration.Observe(seconds)
}

// RecordSweepRecord records one record processed by a sweep.
func RecordSweepRecord(outcome string) {
	SweepRecordsProcessed.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(method, path string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordDatabaseQuery records a database query duration.
func RecordDatabaseQuery(operation string, seconds float64) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(seconds)
}
