package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken string
	DatabaseURL   string
	LogLevel      string
	Environment   string

	CronSpecSweep          string        // How often due reminders are swept
	RepeatReminderInterval time.Duration // Gap between overdue reminders
	UpcomingHorizon        time.Duration // How far /upcoming looks ahead

	HTTPAddr              string
	PublicURL             string
	SubscriptionJWTSecret string
	CronSecret            string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	WebhookRatePerSec float64
	DeliveryTimeout   time.Duration
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecSweep = os.Getenv("CRON_SPEC_SWEEP")
	if cfg.CronSpecSweep == "" {
		cfg.CronSpecSweep = "*/5 * * * *" // Default: every 5 minutes
	}

	if cfg.RepeatReminderInterval, err = durationEnv("REPEAT_REMINDER_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.UpcomingHorizon, err = durationEnv("UPCOMING_HORIZON", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DeliveryTimeout, err = durationEnv("DELIVERY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.PublicURL = strings.TrimRight(os.Getenv("PUBLIC_URL"), "/")
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:8080"
	}

	cfg.SubscriptionJWTSecret = os.Getenv("SUBSCRIPTION_JWT_SECRET")
	if cfg.SubscriptionJWTSecret == "" {
		return nil, fmt.Errorf("SUBSCRIPTION_JWT_SECRET is not set")
	}
	cfg.CronSecret = os.Getenv("CRON_SECRET") // Empty disables the external cron endpoint

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	cfg.SMTPPort = 587
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		cfg.SMTPPort, err = strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
	}

	cfg.WebhookRatePerSec = 5
	if rateStr := os.Getenv("WEBHOOK_RATE_PER_SEC"); rateStr != "" {
		cfg.WebhookRatePerSec, err = strconv.ParseFloat(rateStr, 64)
		if err != nil || cfg.WebhookRatePerSec <= 0 {
			return nil, fmt.Errorf("invalid WEBHOOK_RATE_PER_SEC: %q", rateStr)
		}
	}

	return cfg, nil
}

// EmailEnabled reports whether enough SMTP settings are present to send mail.
func (c *AppConfig) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
