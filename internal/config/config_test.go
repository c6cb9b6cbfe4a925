package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.ArchiveBackend != ArchiveNone {
		t.Errorf("ArchiveBackend = %q, want none", cfg.ArchiveBackend)
	}
	if cfg.EnrichWorkers != 3 {
		t.Errorf("EnrichWorkers = %d, want 3", cfg.EnrichWorkers)
	}
	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want 30s", cfg.FetchTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CARSIFT_ADDR", ":9999")
	t.Setenv("CARSIFT_ARCHIVE", "sqlite")
	t.Setenv("CARSIFT_ENRICH_WORKERS", "8")
	t.Setenv("CARSIFT_FETCH_TIMEOUT_SECONDS", "10")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.ArchiveBackend != ArchiveSQLite || cfg.EnrichWorkers != 8 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.OpenAIKey != "sk-test" {
		t.Errorf("OpenAIKey = %q", cfg.OpenAIKey)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("CARSIFT_ARCHIVE", "redis")
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown archive backend")
	}
	t.Setenv("CARSIFT_ARCHIVE", "postgres")
	t.Setenv("CARSIFT_POSTGRES_DSN", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for postgres archive without DSN")
	}
	t.Setenv("CARSIFT_ARCHIVE", "none")
	t.Setenv("CARSIFT_ENRICH_WORKERS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("expected error for unparseable worker count")
	}
}
