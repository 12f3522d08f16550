package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	AutoMigrate     bool
}

type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

type BillingConfig struct {
	Timezone       string
	CatalogPath    string // empty means the built-in plan catalog
	NearExpiryDays int
	IdempotencyTTL time.Duration
}

type JobsConfig struct {
	Enabled             bool
	ExpirySweepSchedule string
	ReminderSchedule    string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	UseSSL     bool
	RequireTLS bool
}

type Config struct {
	Environment string
	Port        string
	JWTSecret   string
	AppName     string
	AppBaseURL  string

	Database DatabaseConfig
	Log      LogConfig
	Billing  BillingConfig
	Jobs     JobsConfig
	SMTP     SMTPConfig
}

// Load reads path (a .env file) if it exists and then builds the config
// from the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	cfg.Environment = getEnv("ENVIRONMENT", "development")
	cfg.Port = getEnv("PORT", "8080")
	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.AppName = getEnv("APP_NAME", "ChurchHub")
	cfg.AppBaseURL = getEnv("APP_BASE_URL", "http://localhost:3000")

	cfg.Database.URL = getEnv("POSTGRES_URL", "")
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.Database.MaxConnLifetime = getEnvDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute)
	cfg.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", true)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", "text"))

	cfg.Billing.Timezone = getEnv("BILLING_TIMEZONE", "UTC")
	cfg.Billing.CatalogPath = getEnv("CATALOG_PATH", "")
	cfg.Billing.NearExpiryDays = getEnvInt("NEAR_EXPIRY_DAYS", 7)
	cfg.Billing.IdempotencyTTL = getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", true)
	cfg.Jobs.ExpirySweepSchedule = getEnv("EXPIRY_SWEEP_SCHEDULE", "*/15 * * * *")
	cfg.Jobs.ReminderSchedule = getEnv("REMINDER_SCHEDULE", "0 8 * * *")

	cfg.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.SMTP.Port = getEnvInt("SMTP_PORT", 587)
	cfg.SMTP.Username = getEnv("SMTP_USERNAME", "")
	cfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.SMTP.From = getEnv("SMTP_FROM", cfg.SMTP.Username)
	cfg.SMTP.FromName = getEnv("SMTP_FROM_NAME", cfg.AppName)
	cfg.SMTP.UseSSL = getEnvBool("SMTP_USE_SSL", false)
	cfg.SMTP.RequireTLS = getEnvBool("SMTP_REQUIRE_TLS", true)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("POSTGRES_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("BILLING_TIMEZONE: %w", err)
	}
	if c.Billing.NearExpiryDays <= 0 {
		return fmt.Errorf("NEAR_EXPIRY_DAYS must be positive")
	}
	if c.Jobs.Enabled {
		for key, spec := range map[string]string{
			"EXPIRY_SWEEP_SCHEDULE": c.Jobs.ExpirySweepSchedule,
			"REMINDER_SCHEDULE":     c.Jobs.ReminderSchedule,
		} {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

// Location is the billing calendar used for month arithmetic.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Billing.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MailEnabled reports whether reminder mails can be sent at all.
func (c *Config) MailEnabled() bool {
	return c.SMTP.Host != "" && c.SMTP.From != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
