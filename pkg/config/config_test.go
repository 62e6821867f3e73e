package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// The repo's default config must stay loadable; a parse regression here
// means the binary exits at startup.
func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	if err != nil {
		t.Fatalf("load shipped config: %v", err)
	}

	if cfg.Environment != "development" {
		t.Fatalf("environment: got %q", cfg.Environment)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("server.port: got %d", cfg.Server.Port)
	}

	// allocation_ttl: 0s means expiry sweeping is off for these domains.
	if cfg.Domains.Time.AllocationTTL != 0 {
		t.Fatalf("time allocation_ttl: got %v, want 0", cfg.Domains.Time.AllocationTTL)
	}
	if cfg.Domains.Capacity.AllocationTTL != 0 {
		t.Fatalf("capacity allocation_ttl: got %v, want 0", cfg.Domains.Capacity.AllocationTTL)
	}
	if cfg.Domains.Material.AllocationTTL != 0 {
		t.Fatalf("material allocation_ttl: got %v, want 0", cfg.Domains.Material.AllocationTTL)
	}
	if cfg.Domains.Financial.AllocationTTL != 0 {
		t.Fatalf("financial allocation_ttl: got %v, want 0", cfg.Domains.Financial.AllocationTTL)
	}
	if cfg.Domains.Surge.AllocationTTL != 4*time.Hour {
		t.Fatalf("surge allocation_ttl: got %v, want 4h", cfg.Domains.Surge.AllocationTTL)
	}

	if cfg.Domains.Surge.SurgeThreshold != 1.5 {
		t.Fatalf("surge_threshold: got %v", cfg.Domains.Surge.SurgeThreshold)
	}
	if got := len(cfg.Antifragile.Patterns); got != 3 {
		t.Fatalf("antifragile patterns: got %d, want 3", got)
	}
	if got := len(cfg.Monitoring.Thresholds); got != 4 {
		t.Fatalf("monitoring thresholds: got %d, want 4", got)
	}
	if cfg.Monitoring.CollectionInterval != 30*time.Second {
		t.Fatalf("collection_interval: got %v", cfg.Monitoring.CollectionInterval)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	bad := []byte("environment: test\nserver:\n  read_timeout: nonsense\n")
	if err := os.WriteFile(path, bad, 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error for bad duration")
	}
}
