package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ServerEnv holds the operational toggles read by cmd/server.
type ServerEnv struct {
	DeployEnv       string `env:"DEPLOY_ENV"`
	DataDir         string `env:"ORCA_DATA_DIR"`
	EnableAdminHTTP string `env:"ORCA_ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP bool   `env:"ORCA_ENABLE_PPROF_HTTP" envDefault:"false"`
	IndexBackend    string `env:"ORCA_INDEX_BACKEND" envDefault:"sqlite"`

	Mirror MirrorEnv
}

// MirrorEnv configures the optional object-storage mirror of snapshots, archives and logs.
type MirrorEnv struct {
	Enabled         bool   `env:"ORCA_MIRROR" envDefault:"false"`
	Endpoint        string `env:"ORCA_MIRROR_ENDPOINT"`
	Bucket          string `env:"ORCA_MIRROR_BUCKET"`
	Region          string `env:"ORCA_MIRROR_REGION" envDefault:"auto"`
	AccessKeyID     string `env:"ORCA_MIRROR_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"ORCA_MIRROR_SECRET_ACCESS_KEY"`
	Prefix          string `env:"ORCA_MIRROR_PREFIX"`
	Workers         int    `env:"ORCA_MIRROR_WORKERS" envDefault:"2"`
}

// LoadServerEnv parses ServerEnv from the process environment.
func LoadServerEnv() (ServerEnv, error) {
	var cfg ServerEnv
	if err := ParseEnv(&cfg); err != nil {
		return ServerEnv{}, err
	}
	cfg.IndexBackend = strings.ToLower(strings.TrimSpace(cfg.IndexBackend))
	if m := cfg.Mirror; m.Enabled && (m.Endpoint == "" || m.Bucket == "" || m.AccessKeyID == "" || m.SecretAccessKey == "") {
		return ServerEnv{}, fmt.Errorf("ORCA_MIRROR=true but ORCA_MIRROR_ENDPOINT/BUCKET/ACCESS_KEY_ID/SECRET_ACCESS_KEY are not fully set")
	}
	return cfg, nil
}

// Production reports whether DEPLOY_ENV names a production-like deployment.
func (c ServerEnv) Production() bool {
	switch strings.ToLower(strings.TrimSpace(c.DeployEnv)) {
	case "prod", "production", "staging":
		return true
	}
	return false
}

// AdminHTTPEnabled honors ORCA_ENABLE_ADMIN_HTTP when set; otherwise admin endpoints are
// on outside production.
func (c ServerEnv) AdminHTTPEnabled() bool {
	if v := strings.TrimSpace(c.EnableAdminHTTP); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return !c.Production()
}
