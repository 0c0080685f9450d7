package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadNumericValues(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("LOCK_TIMEOUT_MS", "-5")

	cfg := Load()
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("expected report cache TTL fallback 30, got %d", cfg.ReportCacheTTLSeconds)
	}
	if cfg.LockTimeoutMillis != 3000 {
		t.Fatalf("expected lock timeout fallback 3000, got %d", cfg.LockTimeoutMillis)
	}
}
