package config

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PITWALL_TEST_INT", "42")
	t.Setenv("PITWALL_TEST_BAD_INT", "x")
	t.Setenv("PITWALL_TEST_BOOL", " true ")
	t.Setenv("PITWALL_TEST_FLOAT", "2.5")
	t.Setenv("PITWALL_TEST_DURATION", "90s")

	if got := getEnvInt("PITWALL_TEST_INT", 1); got != 42 {
		t.Errorf("getEnvInt = %d", got)
	}
	if got := getEnvInt("PITWALL_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvInt fallback = %d", got)
	}
	if !getEnvBool("PITWALL_TEST_BOOL", false) {
		t.Error("getEnvBool = false")
	}
	if got := getEnvFloat("PITWALL_TEST_FLOAT", 0); got != 2.5 {
		t.Errorf("getEnvFloat = %v", got)
	}
	if got := getEnvDuration("PITWALL_TEST_DURATION", 0); got != 90*time.Second {
		t.Errorf("getEnvDuration = %v", got)
	}
	if got := getEnv("PITWALL_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("getEnv = %q", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("UPSTREAM_TIMEOUT", "15s")
	t.Setenv("TRANSCRIBER", "OpenAI")

	cfg := Load()
	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q", cfg.DBDriver)
	}
	if cfg.UpstreamTimeout != 15*time.Second {
		t.Errorf("UpstreamTimeout = %v", cfg.UpstreamTimeout)
	}
	if cfg.Transcriber != "openai" {
		t.Errorf("Transcriber = %q", cfg.Transcriber)
	}
	if cfg.DBBusyTimeout != 5*time.Second {
		t.Errorf("DBBusyTimeout = %v", cfg.DBBusyTimeout)
	}
}
