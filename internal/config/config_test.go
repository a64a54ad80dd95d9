package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/ankiforge/internal/apperr"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Generation.StrategyMix) == 0 {
		t.Error("expected strategy mix to be populated")
	}

	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}

	if cfg.Generation.SplitThreshold != 70000 {
		t.Errorf("expected split threshold 70000, got %d", cfg.Generation.SplitThreshold)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}

	if cfg.Web.Timeout() != 15*time.Second || cfg.Web.MaxPerFeed != 20 || cfg.Web.FullContent {
		t.Errorf("unexpected web defaults %+v", cfg.Web)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.LLM.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.LLM.MaxRetries)
	}
	if cfg.Anki.URL != "http://127.0.0.1:8765" {
		t.Errorf("expected default anki url, got %q", cfg.Anki.URL)
	}
	if cfg.LLM.Timeout() != 60*time.Second {
		t.Errorf("expected 60s timeout, got %v", cfg.LLM.Timeout())
	}
	if cfg.LLM.BaseDelay() != time.Second {
		t.Errorf("expected 1s base delay, got %v", cfg.LLM.BaseDelay())
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Generation.StrategyMix[0].Strategy != "basic" {
		t.Errorf("expected first strategy 'basic', got %q", cfg.Generation.StrategyMix[0].Strategy)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"provider":    func(c *Config) { c.LLM.Provider = "gemini" },
		"update mode": func(c *Config) { c.Anki.UpdateMode = "upsert" },
		"retries":     func(c *Config) { c.LLM.MaxRetries = 0 },
		"workers":     func(c *Config) { c.Generation.Workers = -1 },
		"threshold":   func(c *Config) { c.Generation.SplitThreshold = 0 },
		"days back":   func(c *Config) { c.Web.DaysBack = -1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		if apperr.CodeOf(err) != apperr.ConfigInvalid {
			t.Errorf("%s: expected E_CONFIG_INVALID, got %v", name, err)
		}
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("ANKIFORGE_TEST_KEY", "sk-123")
	l := LLM{APIKeyEnv: "ANKIFORGE_TEST_KEY"}
	if l.APIKey() != "sk-123" {
		t.Errorf("expected key from env, got %q", l.APIKey())
	}
	if (LLM{}).APIKey() != "" {
		t.Error("expected empty key with no env name")
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
