// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	DatabaseURL string
	LogLevel    string

	// Live price lookup for non-manual investment buys.
	PriceAPIBaseURL string
	PriceAPITimeout time.Duration
	PriceCacheTTL   time.Duration

	// SIP engine trigger.
	SIPRunInterval time.Duration
	SIPTimezone    string

	// Optional outbound integrations. Empty values disable them.
	TelegramBotToken string
	KafkaBrokers     []string
	GeminiAPIKey     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		PriceAPIBaseURL:  os.Getenv("PRICE_API_BASE_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
	}

	cfg.PriceAPITimeout = 5 * time.Second
	if secs := envInt("PRICE_API_TIMEOUT_SECONDS"); secs > 0 {
		cfg.PriceAPITimeout = time.Duration(secs) * time.Second
	}

	cfg.PriceCacheTTL = 15 * time.Minute
	if mins := envInt("PRICE_CACHE_TTL_MINUTES"); mins > 0 {
		cfg.PriceCacheTTL = time.Duration(mins) * time.Minute
	}

	cfg.SIPRunInterval = 30 * time.Minute
	if mins := envInt("SIP_RUN_INTERVAL_MINUTES"); mins > 0 {
		cfg.SIPRunInterval = time.Duration(mins) * time.Minute
	}

	cfg.SIPTimezone = "Asia/Singapore"
	if tz := os.Getenv("SIP_TIMEZONE"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			cfg.SIPTimezone = tz
		}
	}

	brokersStr := os.Getenv("KAFKA_BROKERS")
	if brokersStr != "" {
		for broker := range strings.SplitSeq(brokersStr, ",") {
			broker = strings.TrimSpace(broker)
			if broker == "" {
				continue
			}
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
		}
	}

	// Validate required configuration.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envInt parses an integer environment variable, returning 0 when unset or invalid.
func envInt(key string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// EventsEnabled reports whether kafka event publishing is configured.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// TelegramEnabled reports whether the Telegram notifier is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}
