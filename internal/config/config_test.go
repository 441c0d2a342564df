package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr ':8080', got %q", cfg.Server.Addr)
	}

	if cfg.Inference.BatchSize != 20 {
		t.Errorf("expected default batch size 20, got %d", cfg.Inference.BatchSize)
	}

	if cfg.Inference.AgreementBonus != 0.15 {
		t.Errorf("expected agreement bonus 0.15, got %v", cfg.Inference.AgreementBonus)
	}

	if cfg.Inference.AcceptThreshold != 0.6 {
		t.Errorf("expected accept threshold 0.6, got %v", cfg.Inference.AcceptThreshold)
	}

	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("expected cache TTL 24h, got %v", cfg.Cache.TTL)
	}

	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected cache backend 'memory', got %q", cfg.Cache.Backend)
	}

	if cfg.Log.Level != "INFO" {
		t.Errorf("expected log level INFO, got %q", cfg.Log.Level)
	}

	if !cfg.Inference.Enabled {
		t.Error("expected inference.enabled to be true")
	}

	if cfg.Sessions.MaxAge != 168*time.Hour {
		t.Errorf("expected sessions max age 168h, got %v", cfg.Sessions.MaxAge)
	}
}

func TestSessionsResolvePath(t *testing.T) {
	s := SessionsConfig{Path: filepath.Join("tmp", "custom.db")}
	if got := s.ResolvePath(); got != filepath.Join("tmp", "custom.db") {
		t.Errorf("ResolvePath() = %q, want the configured path", got)
	}

	t.Setenv("XDG_DATA_HOME", filepath.Join(string(filepath.Separator), "data"))
	s = SessionsConfig{}
	want := filepath.Join(string(filepath.Separator), "data", "skein", "sessions.db")
	if got := s.ResolvePath(); got != want {
		t.Errorf("ResolvePath() = %q, want %q", got, want)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  addr: ":9090"
  rate_limit: 5
auth:
  tokens:
    - secret-token
anthropic:
  api_key: test-key
  model: claude-haiku-4-5
inference:
  batch_size: 10
  concurrency: 2
  batch_timeout: 30s
cache:
  backend: sqlite
  path: /tmp/skein-cache.db
  ttl: 1h
webhook:
  url: https://hooks.example.com/deps
log:
  level: DEBUG
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Server.Addr)
	}
	if len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0] != "secret-token" {
		t.Errorf("tokens = %v, want [secret-token]", cfg.Auth.Tokens)
	}
	if cfg.Anthropic.Model != "claude-haiku-4-5" {
		t.Errorf("model = %q, want claude-haiku-4-5", cfg.Anthropic.Model)
	}
	if cfg.Inference.BatchSize != 10 {
		t.Errorf("batch size = %d, want 10", cfg.Inference.BatchSize)
	}
	if cfg.Inference.BatchTimeout != 30*time.Second {
		t.Errorf("batch timeout = %v, want 30s", cfg.Inference.BatchTimeout)
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("cache backend = %q, want sqlite", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("cache TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.Webhook.URL != "https://hooks.example.com/deps" {
		t.Errorf("webhook url = %q", cfg.Webhook.URL)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("log level = %q, want DEBUG", cfg.Log.Level)
	}

	// Unset keys keep their defaults.
	if cfg.Inference.AgreementBonus != 0.15 {
		t.Errorf("agreement bonus = %v, want default 0.15", cfg.Inference.AgreementBonus)
	}
	if cfg.Classifier.ReviewThreshold != 0.5 {
		t.Errorf("review threshold = %v, want default 0.5", cfg.Classifier.ReviewThreshold)
	}
}

func TestLoadFromPath_ExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("SKEIN_TEST_KEY", "sk-ant-expanded")

	configContent := "anthropic:\n  api_key: ${SKEIN_TEST_KEY}\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-expanded" {
		t.Errorf("api_key = %q, want expanded value", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFromPath() on missing file should return error")
	}
}
