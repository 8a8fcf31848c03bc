package config

import (
	"testing"
	"time"
)

func TestLoadProcessingDefaults(t *testing.T) {
	t.Setenv("INPUT_CHAR_LIMIT", "")
	t.Setenv("OUTPUT_CHAR_LIMIT", "")
	t.Setenv("FAST_PATH_BUDGET", "")
	t.Setenv("SYNC_ANALYZE_BUDGET", "")
	t.Setenv("HISTORY_LIMIT", "")

	cfg := Load()
	if cfg.InputCharLimit != 30000 {
		t.Fatalf("expected default input limit 30000, got %d", cfg.InputCharLimit)
	}
	if cfg.OutputCharLimit != 10000 {
		t.Fatalf("expected default output limit 10000, got %d", cfg.OutputCharLimit)
	}
	if cfg.FastPathBudget != 3*time.Second {
		t.Fatalf("expected default fast path budget 3s, got %s", cfg.FastPathBudget)
	}
	if cfg.SyncAnalyzeBudget != 25*time.Second {
		t.Fatalf("expected default sync analyze budget 25s, got %s", cfg.SyncAnalyzeBudget)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected default history limit 50, got %d", cfg.HistoryLimit)
	}
}

func TestLoadParsesProcessingOverrides(t *testing.T) {
	t.Setenv("INPUT_CHAR_LIMIT", "12000")
	t.Setenv("FAST_PATH_BUDGET", "1500ms")
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	if cfg.InputCharLimit != 12000 {
		t.Fatalf("expected input limit 12000, got %d", cfg.InputCharLimit)
	}
	if cfg.FastPathBudget != 1500*time.Millisecond {
		t.Fatalf("expected fast path budget 1.5s, got %s", cfg.FastPathBudget)
	}
	if cfg.StorageBackend != "minio" {
		t.Fatalf("expected storage backend minio, got %q", cfg.StorageBackend)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if !cfg.MinioUseSSL {
		t.Fatalf("expected minio ssl enabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "not-a-number")
	t.Setenv("JOB_TIMEOUT", "soon")

	cfg := Load()
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected fallback history limit 50, got %d", cfg.HistoryLimit)
	}
	if cfg.JobTimeout != 5*time.Minute {
		t.Fatalf("expected fallback job timeout 5m, got %s", cfg.JobTimeout)
	}
}
