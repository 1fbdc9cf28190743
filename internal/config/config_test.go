package config

import (
	"os"
	"testing"
)

func TestLoadRequiresDatabaseDSN(t *testing.T) {
	os.Unsetenv("GOCLAW_DATABASE_DSN")
	_, err := Load("")
	if err == nil {
		t.Fatal("Load() with no DSN configured, want error")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GOCLAW_DATABASE_DSN", "postgres://localhost/test")
	t.Setenv("GOCLAW_BIND_ADDR", ":9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.DSN != "postgres://localhost/test" {
		t.Fatalf("Database.DSN = %q", cfg.Database.DSN)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want :9090", cfg.BindAddr)
	}
}
