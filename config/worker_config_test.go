package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "local")
	t.Setenv("DRY_RUN", "")
	t.Setenv("SCAN_LOOKBACK", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KeyPrefix != "gmail-agent" {
		t.Errorf("expected prefix gmail-agent, got %s", cfg.KeyPrefix)
	}
	if !cfg.DryRun {
		t.Error("expected dry run to default on for local")
	}
	if cfg.SignatureRequired {
		t.Error("expected signature check off for local")
	}
	if cfg.ScanLookback != 48*time.Hour {
		t.Errorf("expected 48h lookback, got %v", cfg.ScanLookback)
	}
	if cfg.DedupTTL != 720*time.Hour {
		t.Errorf("expected 720h dedup ttl, got %v", cfg.DedupTTL)
	}
	if cfg.ScanPageSize != 10 {
		t.Errorf("expected page size 10, got %d", cfg.ScanPageSize)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:        EnvProduction,
			GoogleClientID:     "id",
			GoogleClientSecret: "secret",
			KVBackend:          KVBackendRedis,
			RedisURL:           "redis://localhost:6379",
			LLMCacheBackend:    LLMCacheOff,
			ThreadPolicy:       ThreadPolicySkip,
			ScanPageSize:       10,
			SignatureRequired:  true,
			SigningKeyCurrent:  "k",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing google credentials", func(c *Config) { c.GoogleClientSecret = "" }, true},
		{"redis without url", func(c *Config) { c.RedisURL = "" }, true},
		{"memory without url", func(c *Config) { c.KVBackend = KVBackendMemory; c.RedisURL = "" }, false},
		{"unknown thread policy", func(c *Config) { c.ThreadPolicy = "all" }, true},
		{"unknown cache backend", func(c *Config) { c.LLMCacheBackend = "file" }, true},
		{"redis cache on memory kv", func(c *Config) { c.KVBackend = KVBackendMemory; c.LLMCacheBackend = LLMCacheRedis }, true},
		{"signature without key", func(c *Config) { c.SigningKeyCurrent = "" }, true},
		{"unknown env", func(c *Config) { c.Environment = "staging" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
