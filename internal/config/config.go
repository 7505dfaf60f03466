// Package config loads the service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/currency"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// DefaultPricingTable is the shared pricing table; the local SQLite migrations
// create only this one.
const DefaultPricingTable = "tenant_pricing"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Billing  BillingConfig
	Pricing  PricingConfig
	Render   RenderConfig
	Archive  ArchiveConfig
	Logging  LoggingConfig
	Tenants  TenantsConfig
	Database DatabaseConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig points at the local SQLite file shared by River and the
// local pricing table.
type DatabaseConfig struct {
	Path string
}

// TenantsConfig locates tenant descriptors and bounds tenant DB calls.
type TenantsConfig struct {
	Dir       string
	DBTimeout time.Duration
}

// BillingConfig holds the batch defaults.
type BillingConfig struct {
	WebhookURL       string
	WebhookTimeout   time.Duration
	QuantityStrategy domain.QuantityStrategy
	Attach           domain.AttachMode
	Currency         string
	Schedule         string
	ScheduleEnabled  bool
}

// PricingConfig selects the shared pricing table. An empty DSN keeps the
// table in the local SQLite database.
type PricingConfig struct {
	DSN   string
	Table string
}

// RenderConfig controls headless Chrome rendering.
type RenderConfig struct {
	Enabled    bool
	Timeout    time.Duration
	ChromePath string
}

// ArchiveConfig enables the S3 invoice archive when Bucket is set.
type ArchiveConfig struct {
	Bucket   string
	Prefix   string
	Endpoint string
	Region   string
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  slog.Level
	Format string // "json" or "text"
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	strategy, err := domain.ParseQuantityStrategy(os.Getenv("BILLING_QUANTITY_STRATEGY"))
	if err != nil {
		return nil, fmt.Errorf("BILLING_QUANTITY_STRATEGY: %w", err)
	}
	attach, err := domain.ParseAttachMode(os.Getenv("BILLING_ATTACH"))
	if err != nil {
		return nil, fmt.Errorf("BILLING_ATTACH: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "tenantbill.db"),
		},
		Tenants: TenantsConfig{
			Dir:       getEnv("TENANTS_DIR", "tenants"),
			DBTimeout: getEnvDuration("TENANT_DB_TIMEOUT", 10*time.Second),
		},
		Billing: BillingConfig{
			WebhookURL:       strings.TrimSpace(os.Getenv("BILLING_WEBHOOK_URL")),
			WebhookTimeout:   getEnvDuration("BILLING_WEBHOOK_TIMEOUT", 20*time.Second),
			QuantityStrategy: strategy,
			Attach:           attach,
			Currency:         strings.ToUpper(getEnv("BILLING_CURRENCY", "USD")),
			Schedule:         getEnv("BILLING_CRON", "0 9 * * *"),
			ScheduleEnabled:  getEnvBool("BILLING_SCHEDULE_ENABLED", true),
		},
		Pricing: PricingConfig{
			DSN:   os.Getenv("PRICING_DSN"),
			Table: getEnv("PRICING_TABLE", DefaultPricingTable),
		},
		Render: RenderConfig{
			Enabled:    getEnvBool("RENDER_ENABLED", true),
			Timeout:    getEnvDuration("RENDER_TIMEOUT", 30*time.Second),
			ChromePath: os.Getenv("RENDER_CHROME_PATH"),
		},
		Archive: ArchiveConfig{
			Bucket:   os.Getenv("INVOICE_ARCHIVE_BUCKET"),
			Prefix:   getEnv("INVOICE_ARCHIVE_PREFIX", "invoices"),
			Endpoint: os.Getenv("INVOICE_ARCHIVE_ENDPOINT"),
			Region:   getEnv("AWS_REGION", "us-east-1"),
		},
		Logging: LoggingConfig{
			Level:  parseLogLevel(os.Getenv("LOG_LEVEL")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Tenants.Dir == "" {
		return errors.New("tenants directory is required")
	}
	if c.Billing.WebhookTimeout <= 0 || c.Tenants.DBTimeout <= 0 || c.Render.Timeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.Pricing.DSN == "" && c.Pricing.Table != DefaultPricingTable {
		return fmt.Errorf("pricing table %q requires PRICING_DSN; the local store only has %q",
			c.Pricing.Table, DefaultPricingTable)
	}
	if _, err := currency.ParseISO(c.Billing.Currency); err != nil {
		return fmt.Errorf("invalid billing currency %q: %w", c.Billing.Currency, err)
	}
	if c.Billing.ScheduleEnabled {
		if _, err := cron.ParseStandard(c.Billing.Schedule); err != nil {
			return fmt.Errorf("invalid billing schedule %q: %w", c.Billing.Schedule, err)
		}
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	return nil
}

// Logger builds the process logger described by the logging config.
func (c LoggingConfig) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv returns an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return b
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
