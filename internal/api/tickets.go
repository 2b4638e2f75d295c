package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kneutral-org/sla-engine/internal/engine"
	"github.com/kneutral-org/sla-engine/internal/rule"
	"github.com/kneutral-org/sla-engine/internal/tracker"
)

// TicketCreatedResponse reports the tracking outcome for a new ticket.
type TicketCreatedResponse struct {
	Tracked bool            `json:"tracked"`
	Record  *tracker.Record `json:"record,omitempty"`
}

// StatusChangeRequest is the body of a ticket status change event.
type StatusChangeRequest struct {
	Status string `json:"status" binding:"required"`
}

// TicketCreated handles POST /tickets. The ticket is matched against the
// active SLA rules; a match starts tracking.
func (h *Handler) TicketCreated(c *gin.Context) {
	var attrs rule.TicketAttributes
	if err := c.ShouldBindJSON(&attrs); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalidRequest",
			Message: err.Error(),
		})
		return
	}
	if attrs.TicketID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalidRequest",
			Message: "ticketId is required",
		})
		return
	}

	rec, err := h.engine.OnTicketCreated(c.Request.Context(), attrs)
	if errors.Is(err, engine.ErrNoMatch) {
		c.JSON(http.StatusOK, TicketCreatedResponse{Tracked: false})
		return
	}
	if errors.Is(err, tracker.ErrDuplicate) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "alreadyTracked",
			Message: "ticket is already under SLA tracking",
		})
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("ticketId", attrs.TicketID).Msg("failed to start tracking")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal",
			Message: "failed to start tracking",
		})
		return
	}

	c.JSON(http.StatusCreated, TicketCreatedResponse{Tracked: true, Record: rec})
}

// TicketStatusChanged handles POST /tickets/:id/status.
func (h *Handler) TicketStatusChanged(c *gin.Context) {
	var req StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalidRequest",
			Message: err.Error(),
		})
		return
	}

	rec, err := h.engine.OnTicketStatusChanged(c.Request.Context(), c.Param("id"), req.Status)
	if h.respondTicketError(c, err) {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// TicketResolved handles POST /tickets/:id/resolve.
func (h *Handler) TicketResolved(c *gin.Context) {
	rec, err := h.engine.OnTicketResolved(c.Request.Context(), c.Param("id"))
	if h.respondTicketError(c, err) {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetTracking handles GET /tracking/:id.
func (h *Handler) GetTracking(c *gin.Context) {
	rec, err := h.engine.GetTracking(c.Request.Context(), c.Param("id"))
	if h.respondTicketError(c, err) {
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Dashboard handles GET /dashboard. Optional query parameters: from and to
// (RFC 3339) bound record creation time, states is a comma-separated state
// list.
func (h *Handler) Dashboard(c *gin.Context) {
	var filter engine.DashboardFilter

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalidRequest",
				Message: "from must be RFC 3339",
			})
			return
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalidRequest",
				Message: "to must be RFC 3339",
			})
			return
		}
		filter.To = t
	}
	if v := c.Query("states"); v != "" {
		for _, s := range strings.Split(v, ",") {
			switch state := tracker.State(strings.ToUpper(strings.TrimSpace(s))); state {
			case tracker.StateActive, tracker.StatePaused, tracker.StateResolved:
				filter.States = append(filter.States, state)
			default:
				c.JSON(http.StatusBadRequest, ErrorResponse{
					Error:   "invalidRequest",
					Message: "unknown state " + s,
				})
				return
			}
		}
	}

	dashboard, err := h.engine.DashboardMetrics(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to build dashboard")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal",
			Message: "failed to build dashboard",
		})
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// respondTicketError writes the error response for ticket lifecycle
// operations and reports whether an error was handled.
func (h *Handler) respondTicketError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, tracker.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "notFound",
			Message: "ticket is not under SLA tracking",
		})
	case errors.Is(err, tracker.ErrResolved):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "resolved",
			Message: "tracking is already resolved",
		})
	default:
		h.logger.Error().Err(err).Str("ticketId", c.Param("id")).Msg("ticket operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal",
			Message: "ticket operation failed",
		})
	}
	return true
}
