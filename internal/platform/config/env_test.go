package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Port int `env:"ORCA_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("ORCA_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadServerEnv(t *testing.T) {
	t.Setenv("DEPLOY_ENV", "production")
	t.Setenv("ORCA_INDEX_BACKEND", " NONE ")
	t.Setenv("ORCA_ENABLE_ADMIN_HTTP", "")

	cfg, err := LoadServerEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Production() {
		t.Fatalf("expected production")
	}
	if cfg.AdminHTTPEnabled() {
		t.Fatalf("admin http should default off in production")
	}
	if cfg.IndexBackend != "none" {
		t.Fatalf("IndexBackend = %q", cfg.IndexBackend)
	}
	if cfg.EnablePprofHTTP {
		t.Fatalf("pprof should default off")
	}

	t.Setenv("ORCA_ENABLE_ADMIN_HTTP", "true")
	cfg, err = LoadServerEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.AdminHTTPEnabled() {
		t.Fatalf("explicit toggle should win")
	}
}

func TestAdminHTTPDefaultsOnInDev(t *testing.T) {
	cfg := ServerEnv{DeployEnv: "dev"}
	if !cfg.AdminHTTPEnabled() {
		t.Fatalf("admin http should default on outside production")
	}
}

func TestLoadServerEnv_Mirror(t *testing.T) {
	t.Setenv("ORCA_MIRROR", "true")
	t.Setenv("ORCA_MIRROR_ENDPOINT", "r2.example")
	if _, err := LoadServerEnv(); err == nil {
		t.Fatalf("expected incomplete mirror config to fail")
	}

	t.Setenv("ORCA_MIRROR_BUCKET", "orca")
	t.Setenv("ORCA_MIRROR_ACCESS_KEY_ID", "ak")
	t.Setenv("ORCA_MIRROR_SECRET_ACCESS_KEY", "sk")
	cfg, err := LoadServerEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Mirror.Enabled || cfg.Mirror.Region != "auto" || cfg.Mirror.Workers != 2 {
		t.Fatalf("mirror: %+v", cfg.Mirror)
	}
}
