package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI   string
	TelegramToken string

	AIAPIKey  string
	AIBaseURL string
	AIModel   string

	LogLevel string

	ScanInterval  time.Duration
	RecoveryGrace time.Duration
	OverduePolicy string
	NotifyTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURI:   os.Getenv("DATABASE_URI"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		AIAPIKey:      os.Getenv("AI_API_KEY"),
		AIBaseURL:     os.Getenv("AI_BASE_URL"),
		AIModel:       getEnvOrDefault("AI_MODEL", "gpt-4o-mini"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		OverduePolicy: getEnvOrDefault("OVERDUE_POLICY", "notify"),
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.OverduePolicy != "notify" && cfg.OverduePolicy != "skip" {
		return nil, fmt.Errorf("OVERDUE_POLICY must be notify or skip, got %q", cfg.OverduePolicy)
	}

	var err error
	if cfg.ScanInterval, err = getEnvDuration("SCAN_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.RecoveryGrace, err = getEnvDuration("RECOVERY_GRACE", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
