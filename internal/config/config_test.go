package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEMJACK_BIND_ADDR",
		"MEMJACK_METRICS_NAMESPACE",
		"MEMJACK_PROVIDER_MODE",
		"MEMJACK_MODEL",
		"MEMJACK_SHUTDOWN_TIMEOUT",
		"MEMJACK_SESSION_INACTIVITY_TIMEOUT",
		"MEMJACK_SESSION_MAX_TURNS",
		"MEMJACK_ALLOW_ANY_ORIGIN",
		"MEMJACK_SANITIZE_ON_WRITE",
		"MEMJACK_MAX_DESCRIPTION_LEN",
		"MEMJACK_MAX_CONTENT_LEN",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ProviderMode != "auto" {
		t.Fatalf("ProviderMode = %q, want %q", cfg.ProviderMode, "auto")
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Fatalf("Model = %q, want %q", cfg.Model, "gpt-4o-mini")
	}
	if cfg.MetricsNamespace != "memjack" {
		t.Fatalf("MetricsNamespace = %q, want %q", cfg.MetricsNamespace, "memjack")
	}
	if cfg.SessionInactivityTimeout != 10*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 10m", cfg.SessionInactivityTimeout)
	}
	if cfg.SessionMaxTurns != 40 {
		t.Fatalf("SessionMaxTurns = %d, want 40", cfg.SessionMaxTurns)
	}
	if cfg.SanitizeOnWrite {
		t.Fatalf("SanitizeOnWrite = true by default, want false (raw storage)")
	}
	if cfg.MaxDescriptionLen != 200 || cfg.MaxContentLen != 2000 {
		t.Fatalf("field limits = %d/%d, want 200/2000", cfg.MaxDescriptionLen, cfg.MaxContentLen)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty (in-memory store)", cfg.DatabaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMJACK_BIND_ADDR", ":9090")
	t.Setenv("MEMJACK_PROVIDER_MODE", "mock")
	t.Setenv("MEMJACK_SESSION_INACTIVITY_TIMEOUT", "30s")
	t.Setenv("MEMJACK_SESSION_MAX_TURNS", "8")
	t.Setenv("MEMJACK_SANITIZE_ON_WRITE", "true")
	t.Setenv("MEMJACK_MAX_CONTENT_LEN", "500")
	t.Setenv("OPENAI_API_KEY", "  sk-test  ")
	t.Setenv("DATABASE_URL", "postgres://localhost/memjack")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ProviderMode != "mock" {
		t.Fatalf("ProviderMode = %q, want %q", cfg.ProviderMode, "mock")
	}
	if cfg.SessionInactivityTimeout != 30*time.Second {
		t.Fatalf("SessionInactivityTimeout = %v, want 30s", cfg.SessionInactivityTimeout)
	}
	if cfg.SessionMaxTurns != 8 {
		t.Fatalf("SessionMaxTurns = %d, want 8", cfg.SessionMaxTurns)
	}
	if !cfg.SanitizeOnWrite {
		t.Fatalf("SanitizeOnWrite = false, want true")
	}
	if cfg.MaxContentLen != 500 {
		t.Fatalf("MaxContentLen = %d, want 500", cfg.MaxContentLen)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("OpenAIAPIKey = %q, want trimmed value", cfg.OpenAIAPIKey)
	}
	if cfg.DatabaseURL != "postgres://localhost/memjack" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "MEMJACK_SHUTDOWN_TIMEOUT", "soon"},
		{"bad int", "MEMJACK_SESSION_MAX_TURNS", "many"},
		{"bad bool", "MEMJACK_SANITIZE_ON_WRITE", "maybe"},
		{"inactivity below floor", "MEMJACK_SESSION_INACTIVITY_TIMEOUT", "1s"},
		{"zero max turns", "MEMJACK_SESSION_MAX_TURNS", "0"},
		{"negative content len", "MEMJACK_MAX_CONTENT_LEN", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q expected error", tc.key, tc.value)
			}
		})
	}
}

func TestBoolFromEnvSpellings(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true}, {"true", true}, {"YES", true}, {"on", true},
		{"0", false}, {"false", false}, {"No", false}, {"off", false},
	}
	for _, tc := range cases {
		t.Setenv("MEMJACK_TEST_BOOL", tc.value)
		got, err := boolFromEnv("MEMJACK_TEST_BOOL", !tc.want)
		if err != nil {
			t.Fatalf("boolFromEnv(%q) error = %v", tc.value, err)
		}
		if got != tc.want {
			t.Fatalf("boolFromEnv(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
