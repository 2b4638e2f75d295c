// Package config provides configuration management for the SLA engine.
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// DefaultAdminMaxPayloadSize is the default max payload size for admin endpoints (100KB).
	DefaultAdminMaxPayloadSize int64 = 100 * 1024 // 102400 bytes

	// DefaultSweepInterval is the default interval between recompute sweeps.
	DefaultSweepInterval = time.Minute

	// DefaultSweepWorkers is the default sweep worker pool size.
	DefaultSweepWorkers = 8

	// DefaultEventDedupTTL is how long redelivered ticket events are
	// remembered.
	DefaultEventDedupTTL = 24 * time.Hour
)

// Config holds the application configuration.
type Config struct {
	// Port is the HTTP server port.
	Port string

	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string

	// LogPretty enables console-formatted log output for development.
	LogPretty bool

	// DatabaseURL selects the PostgreSQL stores when set; empty selects the
	// in-memory stores.
	DatabaseURL string

	// RedisAddr enables the Redis-backed sweep leader lock when set.
	RedisAddr string

	// SweepInterval is the interval between recompute sweeps.
	SweepInterval time.Duration

	// SweepWorkers is the number of concurrent sweep workers.
	SweepWorkers int

	// WarningRatio is the engine-wide fraction of max TAT at which the
	// warning zone turns critical. Zero selects the built-in default.
	WarningRatio float64

	// RepeatCeiling caps escalation repeats when a rule has no max repeat
	// count. Zero selects the built-in default.
	RepeatCeiling int

	// EscalationWebhookURL routes escalation events to an HTTP endpoint
	// when set; empty selects the log-only dispatcher.
	EscalationWebhookURL string

	// TicketWebhookSecret enables HMAC verification of incoming ticket
	// events when set.
	TicketWebhookSecret string

	// EscalationRosterFile points at a JSON roster document used to resolve
	// escalation recipients when no external directory service is wired in.
	EscalationRosterFile string

	// EventDedupTTL is how long processed ticket-event keys are remembered.
	EventDedupTTL time.Duration

	// AdminMaxPayloadSize is the maximum payload size for admin endpoints in bytes.
	AdminMaxPayloadSize int64
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogPretty:            getEnvBoolOrDefault("LOG_PRETTY", false),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		SweepInterval:        getEnvDurationOrDefault("SWEEP_INTERVAL", DefaultSweepInterval),
		SweepWorkers:         getEnvIntOrDefault("SWEEP_WORKERS", DefaultSweepWorkers),
		WarningRatio:         getEnvFloatOrDefault("WARNING_ZONE_RATIO", 0),
		RepeatCeiling:        getEnvIntOrDefault("MAX_REPEAT_CEILING", 0),
		EscalationWebhookURL: os.Getenv("ESCALATION_WEBHOOK_URL"),
		TicketWebhookSecret:  os.Getenv("TICKET_WEBHOOK_SECRET"),
		EscalationRosterFile: os.Getenv("ESCALATION_ROSTER_FILE"),
		EventDedupTTL:        getEnvDurationOrDefault("EVENT_DEDUP_TTL", DefaultEventDedupTTL),
		AdminMaxPayloadSize:  getEnvInt64OrDefault("ADMIN_MAX_PAYLOAD_SIZE", DefaultAdminMaxPayloadSize),
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt64OrDefault returns the environment variable value as int64 or the default if not set or invalid.
func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable value as int or the default if not set or invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloatOrDefault returns the environment variable value as float64 or the default if not set or invalid.
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable value as bool or the default if not set or invalid.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable value as a duration or the default if not set or invalid.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
