package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kneutral-org/sla-engine/internal/calendar"
	"github.com/kneutral-org/sla-engine/internal/rule"
)

// CreateSchedule handles POST /schedules.
func (h *Handler) CreateSchedule(c *gin.Context) {
	var sched calendar.Schedule
	if !h.bind(c, &sched) {
		return
	}

	created, err := h.schedules.CreateSchedule(c.Request.Context(), &sched)
	if h.respondAdminError(c, err, "schedule") {
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListSchedules handles GET /schedules.
func (h *Handler) ListSchedules(c *gin.Context) {
	schedules, err := h.schedules.ListSchedules(c.Request.Context())
	if h.respondAdminError(c, err, "schedule") {
		return
	}
	c.JSON(http.StatusOK, schedules)
}

// GetSchedule handles GET /schedules/:id.
func (h *Handler) GetSchedule(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	sched, err := h.schedules.GetSchedule(c.Request.Context(), id)
	if h.respondAdminError(c, err, "schedule") {
		return
	}
	c.JSON(http.StatusOK, sched)
}

// UpdateSchedule handles PUT /schedules/:id.
func (h *Handler) UpdateSchedule(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var sched calendar.Schedule
	if !h.bind(c, &sched) {
		return
	}
	sched.ID = id

	updated, err := h.schedules.UpdateSchedule(c.Request.Context(), &sched)
	if h.respondAdminError(c, err, "schedule") {
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteSchedule handles DELETE /schedules/:id.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if h.respondAdminError(c, h.schedules.DeleteSchedule(c.Request.Context(), id), "schedule") {
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateHolidayCalendar handles POST /holiday-calendars.
func (h *Handler) CreateHolidayCalendar(c *gin.Context) {
	var cal calendar.HolidayCalendar
	if !h.bind(c, &cal) {
		return
	}

	created, err := h.calendars.CreateCalendar(c.Request.Context(), &cal)
	if h.respondAdminError(c, err, "holiday calendar") {
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListHolidayCalendars handles GET /holiday-calendars.
func (h *Handler) ListHolidayCalendars(c *gin.Context) {
	calendars, err := h.calendars.ListCalendars(c.Request.Context())
	if h.respondAdminError(c, err, "holiday calendar") {
		return
	}
	c.JSON(http.StatusOK, calendars)
}

// GetHolidayCalendar handles GET /holiday-calendars/:id.
func (h *Handler) GetHolidayCalendar(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	cal, err := h.calendars.GetCalendar(c.Request.Context(), id)
	if h.respondAdminError(c, err, "holiday calendar") {
		return
	}
	c.JSON(http.StatusOK, cal)
}

// UpdateHolidayCalendar handles PUT /holiday-calendars/:id.
func (h *Handler) UpdateHolidayCalendar(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var cal calendar.HolidayCalendar
	if !h.bind(c, &cal) {
		return
	}
	cal.ID = id

	updated, err := h.calendars.UpdateCalendar(c.Request.Context(), &cal)
	if h.respondAdminError(c, err, "holiday calendar") {
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteHolidayCalendar handles DELETE /holiday-calendars/:id.
func (h *Handler) DeleteHolidayCalendar(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if h.respondAdminError(c, h.calendars.DeleteCalendar(c.Request.Context(), id), "holiday calendar") {
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateRule handles POST /sla-rules.
func (h *Handler) CreateRule(c *gin.Context) {
	var r rule.SLARule
	if !h.bind(c, &r) {
		return
	}

	created, err := h.rules.CreateRule(c.Request.Context(), &r)
	if h.respondAdminError(c, err, "SLA rule") {
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListRules handles GET /sla-rules. The active query parameter limits the
// result to active rules.
func (h *Handler) ListRules(c *gin.Context) {
	var (
		rules []*rule.SLARule
		err   error
	)
	if c.Query("active") == "true" {
		rules, err = h.rules.ListActiveRules(c.Request.Context())
	} else {
		rules, err = h.rules.ListRules(c.Request.Context())
	}
	if h.respondAdminError(c, err, "SLA rule") {
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GetRule handles GET /sla-rules/:id.
func (h *Handler) GetRule(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	r, err := h.rules.GetRule(c.Request.Context(), id)
	if h.respondAdminError(c, err, "SLA rule") {
		return
	}
	c.JSON(http.StatusOK, r)
}

// UpdateRule handles PUT /sla-rules/:id.
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var r rule.SLARule
	if !h.bind(c, &r) {
		return
	}
	r.ID = id

	updated, err := h.rules.UpdateRule(c.Request.Context(), &r)
	if h.respondAdminError(c, err, "SLA rule") {
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteRule handles DELETE /sla-rules/:id. The rule's escalation rules are
// deleted with it.
func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if h.respondAdminError(c, h.rules.DeleteRule(c.Request.Context(), id), "SLA rule") {
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateEscalation handles POST /sla-rules/:id/escalations.
func (h *Handler) CreateEscalation(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var esc rule.EscalationRule
	if !h.bind(c, &esc) {
		return
	}
	esc.SLARuleID = id

	created, err := h.rules.CreateEscalation(c.Request.Context(), &esc)
	if h.respondAdminError(c, err, "escalation rule") {
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListEscalations handles GET /sla-rules/:id/escalations.
func (h *Handler) ListEscalations(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	escalations, err := h.rules.ListEscalations(c.Request.Context(), id)
	if h.respondAdminError(c, err, "escalation rule") {
		return
	}
	c.JSON(http.StatusOK, escalations)
}

// UpdateEscalation handles PUT /sla-rules/:id/escalations/:escalation_id.
func (h *Handler) UpdateEscalation(c *gin.Context) {
	ruleID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	escID, ok := h.pathID(c, "escalation_id")
	if !ok {
		return
	}

	var esc rule.EscalationRule
	if !h.bind(c, &esc) {
		return
	}
	esc.ID = escID
	esc.SLARuleID = ruleID

	updated, err := h.rules.UpdateEscalation(c.Request.Context(), &esc)
	if h.respondAdminError(c, err, "escalation rule") {
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteEscalation handles DELETE /sla-rules/:id/escalations/:escalation_id.
func (h *Handler) DeleteEscalation(c *gin.Context) {
	escID, ok := h.pathID(c, "escalation_id")
	if !ok {
		return
	}

	if h.respondAdminError(c, h.rules.DeleteEscalation(c.Request.Context(), escID), "escalation rule") {
		return
	}
	c.Status(http.StatusNoContent)
}

// bind decodes the JSON body and reports success. On failure a 400 response
// is written.
func (h *Handler) bind(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalidRequest",
			Message: err.Error(),
		})
		return false
	}
	return true
}

// pathID parses a UUID path parameter. On failure a 400 response is written.
func (h *Handler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalidRequest",
			Message: name + " must be a UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

// respondAdminError writes the error response for configuration CRUD
// operations and reports whether an error was handled. Validation errors
// map to 400 and missing entities to 404.
func (h *Handler) respondAdminError(c *gin.Context, err error, entity string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, calendar.ErrNotFound), errors.Is(err, rule.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "notFound",
			Message: entity + " not found",
		})
	default:
		// Store-level validation failures carry actionable messages.
		h.logger.Warn().Err(err).Str("entity", entity).Msg("admin operation rejected")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalidRequest",
			Message: err.Error(),
		})
	}
	return true
}
