package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Policy.Bands.AutoStore != 0.7 || cfg.Policy.Bands.Consent != 0.3 {
		t.Errorf("unexpected default bands: %+v", cfg.Policy.Bands)
	}
	if cfg.Sanitize.MaxLength != 800 {
		t.Errorf("unexpected default clamp: %d", cfg.Sanitize.MaxLength)
	}
	if cfg.LLM.Enabled {
		t.Error("LLM assist must default to disabled")
	}
	if cfg.Sweep.Hour != 3 {
		t.Errorf("unexpected sweep hour: %d", cfg.Sweep.Hour)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `data_dir: /var/lib/recall
llm:
  enabled: true
  base_url: http://localhost:11434/v1
  model: llama3
policy:
  consent_retention_days: 14
sweep:
  hour: 4
  minute: 30
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/var/lib/recall" {
		t.Errorf("data_dir not applied: %q", cfg.DataDir)
	}
	if !cfg.LLM.Enabled || cfg.LLM.Model != "llama3" {
		t.Errorf("llm section not applied: %+v", cfg.LLM)
	}
	if cfg.Policy.ConsentRetentionDays != 14 {
		t.Errorf("retention not applied: %d", cfg.Policy.ConsentRetentionDays)
	}
	if cfg.Sweep.Hour != 4 || cfg.Sweep.Minute != 30 {
		t.Errorf("sweep not applied: %+v", cfg.Sweep)
	}
	// Untouched sections keep their defaults.
	if cfg.Policy.Bands.AutoStore != 0.7 {
		t.Errorf("bands should keep defaults: %+v", cfg.Policy.Bands)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "data_dir: /from-file\nllm:\n  model: from-file\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvDataDir, "/from-env")
	t.Setenv(EnvLLMModel, "from-env")
	t.Setenv(EnvLLMEnabled, "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/from-env" {
		t.Errorf("env should win over file: %q", cfg.DataDir)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("env should win over file: %q", cfg.LLM.Model)
	}
	if !cfg.LLM.Enabled {
		t.Error("env enable flag not applied")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestPathHelpers(t *testing.T) {
	cfg := Config{DataDir: "/data"}
	if got := cfg.StorePath(); got != filepath.Join("/data", "memories.json") {
		t.Errorf("store path: %q", got)
	}
	if got := cfg.EventLogPath(); got != filepath.Join("/data", "events.jsonl") {
		t.Errorf("event log path: %q", got)
	}
	if got := cfg.ArchivePath(); got != filepath.Join("/data", "archive.db") {
		t.Errorf("archive path: %q", got)
	}
}
