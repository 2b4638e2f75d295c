package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// KeyExtractor is a function that extracts a deduplication key from a request.
type KeyExtractor func(*gin.Context) string

// Config holds the configuration for the deduplication middleware.
type Config struct {
	// Deduper is the event key store.
	Deduper Deduper
	// TTL is how long to remember processed events.
	TTL time.Duration
	// KeyExtractor extracts the event key from the request.
	// If nil, DefaultKeyExtractor is used.
	KeyExtractor KeyExtractor
	// Logger for logging redeliveries.
	Logger zerolog.Logger
	// DeleteKeyOnError if true, deletes the key when processing fails so the
	// source can redeliver.
	DeleteKeyOnError bool
}

// DefaultTTL is the default TTL for event keys (24 hours).
const DefaultTTL = 24 * time.Hour

// EventIDHeader is the header carrying the source's delivery identifier.
const EventIDHeader = "X-Event-ID"

// DefaultKeyExtractor extracts the event key using the following strategy:
// 1. Use the X-Event-ID header if present
// 2. Fall back to a hash of the request path and body
func DefaultKeyExtractor(c *gin.Context) string {
	if key := c.GetHeader(EventIDHeader); key != "" {
		// Namespace by ticket so identifiers from different tickets never
		// collide.
		if ticketID := c.Param("id"); ticketID != "" {
			return ticketID + ":" + key
		}
		return key
	}

	return extractBodyHash(c)
}

// extractBodyHash creates a hash from the request path and body.
func extractBodyHash(c *gin.Context) string {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	h := sha256.New()
	h.Write([]byte(c.Request.URL.Path))
	h.Write([]byte(":"))
	h.Write(body)

	return hex.EncodeToString(h.Sum(nil))
}

// Middleware creates a Gin middleware that suppresses redelivered ticket
// events. Duplicate deliveries within the TTL window receive a 409 Conflict
// response.
func Middleware(cfg Config) gin.HandlerFunc {
	if cfg.Deduper == nil {
		panic("ingest: deduper is required")
	}

	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}

	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = DefaultKeyExtractor
	}

	return func(c *gin.Context) {
		key := cfg.KeyExtractor(c)
		if key == "" {
			// No key could be extracted, proceed without deduplication
			c.Next()
			return
		}

		isNew, err := cfg.Deduper.CheckAndSet(c.Request.Context(), key, cfg.TTL)
		if err != nil {
			cfg.Logger.Error().
				Err(err).
				Str("eventKey", key).
				Msg("failed to check event key")
			// On store error, proceed with the request to avoid blocking
			// legitimate traffic
			c.Next()
			return
		}

		if !isNew {
			cfg.Logger.Info().
				Str("eventKey", key).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("duplicate event delivery detected")

			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":   "conflict",
				"message": "duplicate event delivery",
				"details": "This event has already been processed. If you need to retry, use a new X-Event-ID.",
			})
			return
		}

		c.Set("eventKey", key)

		c.Next()

		// If configured and processing failed, delete the key so the source
		// can redeliver
		if cfg.DeleteKeyOnError && c.Writer.Status() >= 500 {
			if err := cfg.Deduper.Delete(c.Request.Context(), key); err != nil {
				cfg.Logger.Error().
					Err(err).
					Str("eventKey", key).
					Msg("failed to delete event key after error")
			}
		}
	}
}

// NewConfig creates a default configuration with the provided deduper.
func NewConfig(deduper Deduper) Config {
	return Config{
		Deduper:          deduper,
		TTL:              DefaultTTL,
		KeyExtractor:     DefaultKeyExtractor,
		Logger:           zerolog.Nop(),
		DeleteKeyOnError: true,
	}
}

// WithTTL sets the TTL for event keys.
func (c Config) WithTTL(ttl time.Duration) Config {
	c.TTL = ttl
	return c
}

// WithKeyExtractor sets a custom key extractor.
func (c Config) WithKeyExtractor(extractor KeyExtractor) Config {
	c.KeyExtractor = extractor
	return c
}

// WithLogger sets the logger.
func (c Config) WithLogger(logger zerolog.Logger) Config {
	c.Logger = logger
	return c
}

// WithDeleteKeyOnError sets whether to delete the key on error.
func (c Config) WithDeleteKeyOnError(delete bool) Config {
	c.DeleteKeyOnError = delete
	return c
}
