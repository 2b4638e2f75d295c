// Package middleware provides HTTP middleware for the SLA engine's API
// surface.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// BodyLimitResponse is the 413 body returned when a ticket event or config
// document exceeds the request size cap.
type BodyLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	MaxBytes   int64  `json:"maxBytes"`
	StatusCode int    `json:"statusCode"`
}

// BodyLimit caps request body size across the API. Ticket events and rule or
// schedule documents are small; anything near the cap is a misbehaving
// source, not a legitimate payload.
//
// Requests declaring an oversized Content-Length are rejected before the
// handler runs. Chunked uploads are cut off by http.MaxBytesReader mid-read;
// handlers surface that through c.Error, and the middleware converts it to a
// 413 after the handler aborts.
func BodyLimit(maxBytes int64, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "body-limit").Logger()

	return func(c *gin.Context) {
		if c.Request.Body != nil {
			if c.Request.ContentLength > maxBytes {
				logRejectedBody(log, c, c.Request.ContentLength, maxBytes)
				writeBodyLimitResponse(c, maxBytes)
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()

		for _, ginErr := range c.Errors {
			var tooLarge *http.MaxBytesError
			if !errors.As(ginErr.Err, &tooLarge) {
				continue
			}
			logRejectedBody(log, c, tooLarge.Limit, maxBytes)
			c.Errors = c.Errors[:0]
			if !c.Writer.Written() {
				writeBodyLimitResponse(c, maxBytes)
			}
			return
		}
	}
}

func logRejectedBody(logger zerolog.Logger, c *gin.Context, attemptedSize, maxBytes int64) {
	logger.Warn().
		Str("clientIP", c.ClientIP()).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int64("attemptedSize", attemptedSize).
		Int64("maxBytes", maxBytes).
		Msg("oversized request body rejected")
}

func writeBodyLimitResponse(c *gin.Context, maxBytes int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, BodyLimitResponse{
		Error:      "requestTooLarge",
		Message:    "request body exceeds the maximum allowed size",
		MaxBytes:   maxBytes,
		StatusCode: http.StatusRequestEntityTooLarge,
	})
}
