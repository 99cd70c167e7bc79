package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the memjack service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	SessionMaxTurns          int
	MetricsNamespace         string

	AllowAnyOrigin bool

	ProviderMode  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string

	DatabaseURL string

	// SanitizeOnWrite strips script/HTML-like substrings before memory
	// storage. Defaults to false: the raw-storage posture is the vulnerable
	// configuration this demo exists to show.
	SanitizeOnWrite   bool
	MaxDescriptionLen int
	MaxContentLen     int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("MEMJACK_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("MEMJACK_METRICS_NAMESPACE", "memjack"),
		AllowAnyOrigin:           false,
		ProviderMode:             envOrDefault("MEMJACK_PROVIDER_MODE", "auto"),
		OpenAIAPIKey:             stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:            stringsTrimSpace("OPENAI_BASE_URL"),
		Model:                    envOrDefault("MEMJACK_MODEL", "gpt-4o-mini"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		SanitizeOnWrite:          false,
		MaxDescriptionLen:        200,
		MaxContentLen:            2000,
		SessionMaxTurns:          40,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("MEMJACK_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("MEMJACK_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionMaxTurns, err = intFromEnv("MEMJACK_SESSION_MAX_TURNS", cfg.SessionMaxTurns)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("MEMJACK_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SanitizeOnWrite, err = boolFromEnv("MEMJACK_SANITIZE_ON_WRITE", cfg.SanitizeOnWrite)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxDescriptionLen, err = intFromEnv("MEMJACK_MAX_DESCRIPTION_LEN", cfg.MaxDescriptionLen)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxContentLen, err = intFromEnv("MEMJACK_MAX_CONTENT_LEN", cfg.MaxContentLen)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("MEMJACK_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SessionMaxTurns <= 0 {
		return Config{}, fmt.Errorf("MEMJACK_SESSION_MAX_TURNS must be positive")
	}
	if cfg.MaxDescriptionLen <= 0 {
		return Config{}, fmt.Errorf("MEMJACK_MAX_DESCRIPTION_LEN must be positive")
	}
	if cfg.MaxContentLen <= 0 {
		return Config{}, fmt.Errorf("MEMJACK_MAX_CONTENT_LEN must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
