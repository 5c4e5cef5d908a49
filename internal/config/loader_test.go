package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Router.ConfidenceThreshold != 0.8 {
		t.Errorf("expected confidence threshold 0.8, got %v", cfg.Router.ConfidenceThreshold)
	}
	if cfg.Router.PanelSize != 3 {
		t.Errorf("expected panel size 3, got %d", cfg.Router.PanelSize)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
router:
  confidence_threshold: 0.9
  panel_size: 5
llm:
  model: "openai/gpt-4o"
  api_keys: ["k1", "k2"]
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Router.ConfidenceThreshold != 0.9 {
		t.Errorf("expected threshold 0.9, got %v", cfg.Router.ConfidenceThreshold)
	}
	if cfg.Router.PanelSize != 5 {
		t.Errorf("expected panel size 5, got %d", cfg.Router.PanelSize)
	}
	if len(cfg.LLM.APIKeys) != 2 || cfg.LLM.APIKeys[0] != "k1" {
		t.Errorf("expected two API keys, got %v", cfg.LLM.APIKeys)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("RISKGATE_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("RISKGATE_CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("RISKGATE_LLM_API_KEYS", "alpha, beta,gamma")
	t.Setenv("RISKGATE_BREAKER_TIMEOUT", "1m")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Router.ConfidenceThreshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %v", cfg.Router.ConfidenceThreshold)
	}
	if len(cfg.LLM.APIKeys) != 3 || cfg.LLM.APIKeys[1] != "beta" {
		t.Errorf("expected three trimmed API keys, got %v", cfg.LLM.APIKeys)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := Defaults()
	cfg.Router.ConfidenceThreshold = 0.3
	if err := validate(&cfg); err == nil {
		t.Error("expected error for threshold below 0.5")
	}

	cfg = Defaults()
	cfg.Router.ApproveBelow = 0.9
	cfg.Router.DenyAt = 0.7
	if err := validate(&cfg); err == nil {
		t.Error("expected error for approve_below > deny_at")
	}

	cfg = Defaults()
	cfg.Postgres.DSN = ""
	if err := validate(&cfg); err == nil {
		t.Error("expected error for empty DSN")
	}
}
