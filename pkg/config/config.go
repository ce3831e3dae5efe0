// Package config loads slotline configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string

	// Server
	ServerAddr    string
	PublicBaseURL string

	// Scheduling
	MaxAdditionalProposals int
	OpenSlotsTTL           time.Duration

	// Database. An empty or sqlite URL selects zero-config local mode.
	DatabaseURL string

	// Redis. Empty disables the open-slots page cache.
	RedisURL string

	// RabbitMQ. Empty selects the in-process event bus.
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Audit
	AuditRetention     time.Duration
	AuditPruneInterval time.Duration

	// Notifications. Empty URLs disable the channel.
	SlackWebhookURL    string
	ChatworkWebhookURL string
	SMSWebhookURL      string

	// Worker
	WorkerHealthAddr string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ServerAddr:    getEnv("SLOTLINE_SERVER_ADDR", "0.0.0.0:8080"),
		PublicBaseURL: getEnv("SLOTLINE_PUBLIC_BASE_URL", "http://localhost:8080"),

		MaxAdditionalProposals: getIntEnv("SLOTLINE_MAX_ADDITIONAL_PROPOSALS", 2),
		OpenSlotsTTL:           getDurationEnv("SLOTLINE_OPEN_SLOTS_TTL", 168*time.Hour),

		DatabaseURL: getEnv("DATABASE_URL", "slotline.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 100*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", 24*time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		AuditRetention:     getDurationEnv("AUDIT_RETENTION", 90*24*time.Hour),
		AuditPruneInterval: getDurationEnv("AUDIT_PRUNE_INTERVAL", time.Hour),

		SlackWebhookURL:    getEnv("SLACK_WEBHOOK_URL", ""),
		ChatworkWebhookURL: getEnv("CHATWORK_WEBHOOK_URL", ""),
		SMSWebhookURL:      getEnv("SMS_WEBHOOK_URL", ""),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
