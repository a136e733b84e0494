// Package config loads runtime settings from a YAML file with
// environment overrides. Precedence: env > file > default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumehq/recall/internal/consolidate"
	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/llm"
	"github.com/lumehq/recall/internal/policy"
	"github.com/lumehq/recall/internal/sanitize"
	"github.com/lumehq/recall/internal/score"
)

// Environment variables recognized at load time.
const (
	EnvDataDir    = "RECALL_DATA_DIR"
	EnvLLMBaseURL = "RECALL_LLM_BASE_URL"
	EnvLLMAPIKey  = "RECALL_LLM_API_KEY"
	EnvLLMModel   = "RECALL_LLM_MODEL"
	EnvLLMEnabled = "RECALL_LLM_ENABLED"
)

// LLMConfig wraps the client settings with an enable switch. Disabled
// means rule-based extraction only.
type LLMConfig struct {
	Enabled    bool `yaml:"enabled"`
	llm.Config `yaml:",inline"`
}

// PolicyConfig groups the tunable policy constants.
type PolicyConfig struct {
	Bands                policy.Bands            `yaml:"bands"`
	Classifier           policy.ClassifierConfig `yaml:"classifier"`
	ConsentRetentionDays int                     `yaml:"consent_retention_days"`
}

// SweepConfig sets the daily TTL sweep time (local clock).
type SweepConfig struct {
	Hour   int `yaml:"hour"`
	Minute int `yaml:"minute"`
}

// Config is the full runtime configuration.
type Config struct {
	DataDir       string                `yaml:"data_dir"`
	LLM           LLMConfig             `yaml:"llm"`
	Policy        PolicyConfig          `yaml:"policy"`
	Sanitize      sanitize.Config       `yaml:"sanitize"`
	Limiter       extract.LimiterConfig `yaml:"limiter"`
	Weights       score.Weights         `yaml:"weights"`
	Sweep         SweepConfig           `yaml:"sweep"`
	Consolidation consolidate.Config    `yaml:"consolidation"`
}

// DefaultDataDir is ~/.recall, falling back to the working directory
// when the home directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recall"
	}
	return filepath.Join(home, ".recall")
}

// DefaultConfigPath is ~/.recall/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		DataDir: DefaultDataDir(),
		LLM: LLMConfig{
			Enabled: false,
			Config:  llm.Config{TimeoutSecs: 15},
		},
		Policy: PolicyConfig{
			Bands:                policy.DefaultBands(),
			Classifier:           policy.DefaultClassifierConfig(),
			ConsentRetentionDays: 30,
		},
		Sanitize:      sanitize.DefaultConfig(),
		Limiter:       extract.DefaultLimiterConfig(),
		Weights:       score.DefaultWeights(),
		Sweep:         SweepConfig{Hour: 3, Minute: 0},
		Consolidation: consolidate.DefaultConfig(),
	}
}

// Load reads the config file at path (or the default path when empty),
// applies environment overrides, and fills gaps with defaults. A missing
// file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus env only.
	case err != nil:
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLLMBaseURL); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv(EnvLLMEnabled); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.LLM.Enabled = enabled
		}
	}
}

func normalize(cfg *Config) {
	def := Default()
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.Policy.Bands == (policy.Bands{}) {
		cfg.Policy.Bands = def.Policy.Bands
	}
	if cfg.Policy.Classifier.LongValueThreshold <= 0 {
		cfg.Policy.Classifier = def.Policy.Classifier
	}
	if cfg.Policy.ConsentRetentionDays <= 0 {
		cfg.Policy.ConsentRetentionDays = def.Policy.ConsentRetentionDays
	}
	if cfg.Sanitize.MaxLength <= 0 {
		cfg.Sanitize = def.Sanitize
	}
	if cfg.Limiter.MaxRequests <= 0 || cfg.Limiter.Window <= 0 {
		cfg.Limiter = def.Limiter
	}
	if cfg.Weights.Specificity+cfg.Weights.Stability+cfg.Weights.Novelty <= 0 {
		cfg.Weights = def.Weights
	}
	if cfg.LLM.TimeoutSecs <= 0 {
		cfg.LLM.TimeoutSecs = def.LLM.TimeoutSecs
	}
}

// ConsentRetention returns the suggestion retention window as a
// duration.
func (c Config) ConsentRetention() time.Duration {
	return time.Duration(c.Policy.ConsentRetentionDays) * 24 * time.Hour
}

// StorePath is the JSON snapshot file under the data directory.
func (c Config) StorePath() string { return filepath.Join(c.DataDir, "memories.json") }

// EventLogPath is the JSONL audit log under the data directory.
func (c Config) EventLogPath() string { return filepath.Join(c.DataDir, "events.jsonl") }

// ArchivePath is the SQLite archive under the data directory.
func (c Config) ArchivePath() string { return filepath.Join(c.DataDir, "archive.db") }
