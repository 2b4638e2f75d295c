// Package api provides the HTTP handlers for the SLA engine: ticket
// lifecycle events, tracking queries, the compliance dashboard, and the
// configuration CRUD surface.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/kneutral-org/sla-engine/internal/calendar"
	"github.com/kneutral-org/sla-engine/internal/engine"
	"github.com/kneutral-org/sla-engine/internal/rule"
)

// Handler handles the SLA engine HTTP API.
type Handler struct {
	engine    *engine.Engine
	rules     rule.Store
	schedules calendar.ScheduleStore
	calendars calendar.HolidayCalendarStore
	logger    zerolog.Logger
}

// NewHandler creates a new API handler with the provided dependencies.
func NewHandler(eng *engine.Engine, rules rule.Store, schedules calendar.ScheduleStore, calendars calendar.HolidayCalendarStore, logger zerolog.Logger) *Handler {
	return &Handler{
		engine:    eng,
		rules:     rules,
		schedules: schedules,
		calendars: calendars,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers all API routes on the provided router group. The
// eventMiddleware chain (signature verification, redelivery suppression)
// guards only the ticket lifecycle endpoints.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, eventMiddleware ...gin.HandlerFunc) {
	events := router.Group("", eventMiddleware...)
	events.POST("/tickets", h.TicketCreated)
	events.POST("/tickets/:id/status", h.TicketStatusChanged)
	events.POST("/tickets/:id/resolve", h.TicketResolved)

	router.GET("/tracking/:id", h.GetTracking)
	router.GET("/dashboard", h.Dashboard)

	router.POST("/schedules", h.CreateSchedule)
	router.GET("/schedules", h.ListSchedules)
	router.GET("/schedules/:id", h.GetSchedule)
	router.PUT("/schedules/:id", h.UpdateSchedule)
	router.DELETE("/schedules/:id", h.DeleteSchedule)

	router.POST("/holiday-calendars", h.CreateHolidayCalendar)
	router.GET("/holiday-calendars", h.ListHolidayCalendars)
	router.GET("/holiday-calendars/:id", h.GetHolidayCalendar)
	router.PUT("/holiday-calendars/:id", h.UpdateHolidayCalendar)
	router.DELETE("/holiday-calendars/:id", h.DeleteHolidayCalendar)

	router.POST("/sla-rules", h.CreateRule)
	router.GET("/sla-rules", h.ListRules)
	router.GET("/sla-rules/:id", h.GetRule)
	router.PUT("/sla-rules/:id", h.UpdateRule)
	router.DELETE("/sla-rules/:id", h.DeleteRule)

	router.POST("/sla-rules/:id/escalations", h.CreateEscalation)
	router.GET("/sla-rules/:id/escalations", h.ListEscalations)
	router.PUT("/sla-rules/:id/escalations/:escalation_id", h.UpdateEscalation)
	router.DELETE("/sla-rules/:id/escalations/:escalation_id", h.DeleteEscalation)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
