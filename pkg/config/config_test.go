package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8089" {
		t.Errorf("Expected Port to be 8089, got %s", cfg.Port)
	}
	if cfg.Fetch.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts to be 5, got %d", cfg.Fetch.MaxAttempts)
	}
	if cfg.Fetch.BackoffStep != 5*time.Second {
		t.Errorf("Expected BackoffStep to be 5s, got %v", cfg.Fetch.BackoffStep)
	}
	if cfg.Worker.Count != 8 {
		t.Errorf("Expected Worker.Count to be 8, got %d", cfg.Worker.Count)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Expected Cache.Backend to be memory, got %s", cfg.Cache.Backend)
	}
	if len(cfg.Report.Formats) != 2 {
		t.Errorf("Expected 2 default report formats, got %v", cfg.Report.Formats)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "9000")
	t.Setenv("WORKER_COUNT", "3")
	t.Setenv("FETCH_RATE_LIMIT_FACTOR", "3.5")
	t.Setenv("FETCH_MAX_RETRY_AFTER", "45s")
	t.Setenv("REPORT_FORMATS", "csv, excel ,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected Port to be 9000, got %s", cfg.Port)
	}
	if cfg.Worker.Count != 3 {
		t.Errorf("Expected Worker.Count to be 3, got %d", cfg.Worker.Count)
	}
	if cfg.Fetch.RateLimitFactor != 3.5 {
		t.Errorf("Expected RateLimitFactor to be 3.5, got %v", cfg.Fetch.RateLimitFactor)
	}
	if cfg.Fetch.MaxRetryAfter != 45*time.Second {
		t.Errorf("Expected MaxRetryAfter to be 45s, got %v", cfg.Fetch.MaxRetryAfter)
	}
	if len(cfg.Report.Formats) != 2 || cfg.Report.Formats[1] != "excel" {
		t.Errorf("Expected [csv excel], got %v", cfg.Report.Formats)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected LogLevel to be debug, got %s", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"invalid env", map[string]string{"ENV": "invalid"}},
		{"zero workers", map[string]string{"WORKER_COUNT": "0"}},
		{"zero attempts", map[string]string{"FETCH_MAX_ATTEMPTS": "0"}},
		{"rate limit factor below one", map[string]string{"FETCH_RATE_LIMIT_FACTOR": "0.5"}},
		{"negative retry-after cap", map[string]string{"FETCH_MAX_RETRY_AFTER": "-1s"}},
		{"unknown cache backend", map[string]string{"CACHE_BACKEND": "memcached"}},
		{"redis cache without redis", map[string]string{"CACHE_BACKEND": "redis", "REDIS_ENABLED": "false"}},
		{"postgres sink without url", map[string]string{"REPORT_FORMATS": "postgres", "DATABASE_URL": ""}},
		{"unknown format", map[string]string{"REPORT_FORMATS": "pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", "test")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := Load(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "2h")

	duration := getEnvAsDuration("TEST_DURATION", "1h")
	if duration != 2*time.Hour {
		t.Errorf("Expected duration to be 2h, got %v", duration)
	}

	t.Setenv("TEST_DURATION", "garbage")
	if d := getEnvAsDuration("TEST_DURATION", "1h"); d != time.Hour {
		t.Errorf("Expected fallback 1h, got %v", d)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("TEST_INT", "100")

	value := getEnvAsInt("TEST_INT", 50)
	if value != 100 {
		t.Errorf("Expected value to be 100, got %d", value)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")

	value := getEnvAsBool("TEST_BOOL", false)
	if value != true {
		t.Errorf("Expected value to be true, got %v", value)
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " a ,b,,c ")

	got := getEnvAsList("TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("Expected [a b c], got %v", got)
	}

	t.Setenv("TEST_LIST", ",,")
	if got := getEnvAsList("TEST_LIST", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Errorf("Expected default, got %v", got)
	}
}
