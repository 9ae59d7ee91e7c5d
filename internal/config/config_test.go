package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
env: production
databaseURL: postgres://localhost/smarthive
jwtSecret: super-secret
sessionTTL: 168h
corsOrigins: "https://smarthive.example, https://admin.smarthive.example"
chatModel: gpt-4o-mini
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || !cfg.IsProduction() {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	origins := ParseCORSOrigins(cfg.CORSOrigins)
	if len(origins) != 2 || origins[0] != "https://smarthive.example" {
		t.Fatalf("unexpected origins: %+v", origins)
	}
	ttl, err := ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		t.Fatalf("parse ttl: %v", err)
	}
	if ttl != 168*time.Hour {
		t.Fatalf("expected 168h, got %s", ttl)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing port", "databaseURL: x\njwtSecret: y\n"},
		{"missing database", "port: \"8080\"\njwtSecret: y\n"},
		{"missing secret", "port: \"8080\"\ndatabaseURL: x\n"},
		{"rate limit without redis", "port: \"8080\"\ndatabaseURL: x\njwtSecret: y\nloginRateLimitPerMinute: 5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "port: \"8080\"\ndatabaseURL: file-value\njwtSecret: file-secret\n")
	t.Setenv("DATABASE_URL", "env-value")
	t.Setenv("JWT_SECRET", "env-secret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "env-value" || cfg.JWTSecret != "env-secret" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}
