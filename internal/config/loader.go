package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the roombook client.
type Config struct {
	APIBaseURL         string
	StateDSN           string
	StateSecret        string
	HTTPTimeout        time.Duration
	MinBookingDuration time.Duration
}

// Load parses configuration values from the current process environment. A
// .env file in the working directory is merged in first when present; real
// environment variables win over file entries.
//
// The loader applies defaults for optional fields while validating required
// values and reporting every missing or invalid entry at once.
func Load() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Config{
		StateDSN:           "file:roombook.db",
		HTTPTimeout:        30 * time.Second,
		MinBookingDuration: 15 * time.Minute,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if base := strings.TrimSpace(os.Getenv("ROOMBOOK_API_BASE_URL")); base == "" {
		missing = append(missing, "ROOMBOOK_API_BASE_URL")
	} else {
		cfg.APIBaseURL = strings.TrimRight(base, "/")
	}

	if secret := strings.TrimSpace(os.Getenv("ROOMBOOK_STATE_SECRET")); secret == "" {
		missing = append(missing, "ROOMBOOK_STATE_SECRET")
	} else {
		cfg.StateSecret = secret
	}

	if dsn := strings.TrimSpace(os.Getenv("ROOMBOOK_STATE_DSN")); dsn != "" {
		cfg.StateDSN = dsn
	}

	if timeoutValue := strings.TrimSpace(os.Getenv("ROOMBOOK_HTTP_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "ROOMBOOK_HTTP_TIMEOUT")
		} else {
			cfg.HTTPTimeout = timeout
		}
	}

	if durationValue := strings.TrimSpace(os.Getenv("ROOMBOOK_MIN_BOOKING_DURATION")); durationValue != "" {
		duration, err := time.ParseDuration(durationValue)
		if err != nil || duration <= 0 {
			invalid = append(invalid, "ROOMBOOK_MIN_BOOKING_DURATION")
		} else {
			cfg.MinBookingDuration = duration
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
