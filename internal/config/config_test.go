package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("ADMIN_IDS", "1, 2,3")
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.TokenTTL != 24*time.Hour || cfg.MinioBucket != "submissions" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if len(cfg.AdminIDs) != 3 || cfg.AdminIDs[2] != 3 {
		t.Fatalf("AdminIDs = %v", cfg.AdminIDs)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("TOKEN_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for TOKEN_TTL")
	}
}

func TestBootstrapAdminNeedsBothValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("BOOTSTRAP_ADMIN_USERNAME", "principal")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for half-configured bootstrap admin")
	}

	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "changeme")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BootstrapAdmin != "principal" || cfg.BootstrapPassword != "changeme" {
		t.Fatalf("bootstrap = %q/%q", cfg.BootstrapAdmin, cfg.BootstrapPassword)
	}
}

func TestMustEnvPanics(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_, _ = Load()
}
