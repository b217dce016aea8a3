package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Fatalf("expected driver normalized to memory, got %q", cfg.StoreDriver)
	}
	if cfg.DashboardCacheTTL != 300*time.Second {
		t.Fatalf("expected 300s cache ttl, got %s", cfg.DashboardCacheTTL)
	}
	if cfg.NotifyMaxAttempts != 3 {
		t.Fatalf("expected 3 notify attempts, got %d", cfg.NotifyMaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRequiresDriverURL(t *testing.T) {
	cfg := Config{StoreDriver: DriverPostgres, DashboardCacheTTL: time.Minute, NotifyMaxAttempts: 3}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing DATABASE_URL error")
	}
	cfg.StoreDriver = "sqlite"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowed: " https://a.example , ,https://b.example"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
	if got := (Config{CORSAllowed: "*"}).AllowedOrigins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("expected wildcard kept, got %v", got)
	}
}
