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
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

const minimalConfig = `
api:
  base_url: https://api.acx.example
auth:
  token_url: https://auth.acx.example/oauth/token
`

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dispatch.MaxConcurrency != 5 {
		t.Errorf("MaxConcurrency = %d, want 5", cfg.Dispatch.MaxConcurrency)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseBackoff != 1*time.Second {
		t.Errorf("BaseBackoff = %v, want 1s", cfg.Retry.BaseBackoff)
	}
	if cfg.Retry.Slots != 1 {
		t.Errorf("Slots = %d, want 1", cfg.Retry.Slots)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis should be disabled by default")
	}
	if cfg.Patch.Fields["status"] != "processed" {
		t.Errorf("Patch fields = %v, want default status field", cfg.Patch.Fields)
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://api.acx.example
  page_size: 250
auth:
  token_url: https://auth.acx.example/oauth/token
dispatch:
  max_concurrency: 12
retry:
  max_attempts: 3
  base_backoff: 500ms
  slots: 4
patch:
  fields:
    status: archived
    reviewed: "true"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.PageSize != 250 {
		t.Errorf("PageSize = %d, want 250", cfg.API.PageSize)
	}
	if cfg.Dispatch.MaxConcurrency != 12 {
		t.Errorf("MaxConcurrency = %d, want 12", cfg.Dispatch.MaxConcurrency)
	}
	if cfg.Retry.BaseBackoff != 500*time.Millisecond {
		t.Errorf("BaseBackoff = %v, want 500ms", cfg.Retry.BaseBackoff)
	}
	if cfg.Retry.Slots != 4 {
		t.Errorf("Slots = %d, want 4", cfg.Retry.Slots)
	}

	body := cfg.PatchBody()
	if body["status"] != "archived" {
		t.Errorf("PatchBody status = %v, want archived", body["status"])
	}
	if len(body) != 2 {
		t.Errorf("PatchBody = %v, want 2 fields", body)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	t.Setenv("ACX_AUTH_CLIENT_ID", "env-client")
	t.Setenv("ACX_AUTH_CLIENT_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.ClientID != "env-client" {
		t.Errorf("ClientID = %q, want env-client", cfg.Auth.ClientID)
	}
	if cfg.Auth.ClientSecret != "env-secret" {
		t.Errorf("ClientSecret = %q, want env-secret", cfg.Auth.ClientSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			API:      APIConfig{BaseURL: "https://api.acx.example"},
			Auth:     AuthConfig{TokenURL: "https://auth.acx.example/token"},
			Dispatch: DispatchConfig{MaxConcurrency: 5},
			Retry:    RetryConfig{MaxAttempts: 5, Slots: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, true},
		{"missing token url", func(c *Config) { c.Auth.TokenURL = "" }, true},
		{"zero concurrency", func(c *Config) { c.Dispatch.MaxConcurrency = 0 }, true},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, true},
		{"zero retry slots", func(c *Config) { c.Retry.Slots = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
