package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" || !cfg.UseMemory {
		t.Fatalf("cfg = %+v; want defaults", cfg)
	}
	if cfg.TickInterval.Std() != 5*time.Minute {
		t.Fatalf("tick interval = %s; want 5m", cfg.TickInterval.Std())
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autopilot.yaml")
	yaml := `
listen_addr: ":9000"
use_memory: false
postgres_dsn: "postgres://file-dsn"
tick_interval: "90s"
workers: 8
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("POSTGRES_DSN", "postgres://env-dsn")
	t.Setenv("TICK_INTERVAL", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.Workers != 8 {
		t.Fatalf("cfg = %+v; YAML values missing", cfg)
	}
	if cfg.PostgresDSN != "postgres://env-dsn" {
		t.Fatalf("postgres_dsn = %q; env should override file", cfg.PostgresDSN)
	}
	if cfg.TickInterval.Std() != 2*time.Minute {
		t.Fatalf("tick interval = %s; env should override file", cfg.TickInterval.Std())
	}
}

func TestValidateRejectsMissingDSN(t *testing.T) {
	cfg := Default()
	cfg.UseMemory = false
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing postgres_dsn should fail validation")
	}
}

func TestValidateRejectsTinyInterval(t *testing.T) {
	cfg := Default()
	cfg.TickInterval = Duration(100 * time.Millisecond)
	if err := cfg.Validate(); err == nil {
		t.Fatal("sub-second tick interval should fail validation")
	}
}
