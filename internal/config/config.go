// Package config loads service configuration from a YAML file with
// environment variable overrides. Precedence: defaults, then file, then
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/complyra/retrieval/internal/errors"
)

// Config is the root configuration.
type Config struct {
	DataDir string        `yaml:"data_dir"`
	Sparse  SparseConfig  `yaml:"sparse"`
	Fusion  FusionConfig  `yaml:"fusion"`
	Filter  FilterConfig  `yaml:"filter"`
	Expand  ExpandConfig  `yaml:"expand"`
	Engine  EngineConfig  `yaml:"engine"`
	Embed   EmbedConfig   `yaml:"embed"`
	Eval    EvalConfig    `yaml:"eval"`
	Logging LoggingConfig `yaml:"logging"`
}

// SparseConfig selects and tunes the lexical backend.
type SparseConfig struct {
	// Backend is one of memory, sqlite, bleve.
	Backend string  `yaml:"backend"`
	K1      float64 `yaml:"k1"`
	B       float64 `yaml:"b"`
}

// FusionConfig tunes rank fusion.
type FusionConfig struct {
	K              int     `yaml:"k"`
	Alpha          float64 `yaml:"alpha"`
	BoostThreshold float64 `yaml:"boost_threshold"`
}

// FilterConfig tunes the quality filter.
type FilterConfig struct {
	EnableChunkFilter bool `yaml:"enable_chunk_filter"`
	EnableCodeFilter  bool `yaml:"enable_code_filter"`
	MinTokens         int  `yaml:"min_tokens"`
}

// ExpandConfig tunes context expansion.
type ExpandConfig struct {
	Enabled            bool          `yaml:"enabled"`
	SiblingWindow      int           `yaml:"sibling_window"`
	MaxChunksPerSource int           `yaml:"max_chunks_per_source"`
	Concurrency        int           `yaml:"concurrency"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
}

// EngineConfig tunes orchestration.
type EngineConfig struct {
	DefaultLimit   int           `yaml:"default_limit"`
	CandidateLimit int           `yaml:"candidate_limit"`
	SearchTimeout  time.Duration `yaml:"search_timeout"`
}

// EmbedConfig selects the embedder.
type EmbedConfig struct {
	// Provider is static or ollama.
	Provider   string        `yaml:"provider"`
	Dimensions int           `yaml:"dimensions"`
	OllamaURL  string        `yaml:"ollama_url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EvalConfig points at the RAGAS evaluation service.
type EvalConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig tunes the slog setup.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	Quiet bool   `yaml:"quiet"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Sparse:  SparseConfig{Backend: "memory", K1: 1.2, B: 0.75},
		Fusion:  FusionConfig{K: 60, Alpha: 0.4, BoostThreshold: 0.8},
		Filter: FilterConfig{
			EnableChunkFilter: true,
			EnableCodeFilter:  true,
			MinTokens:         50,
		},
		Expand: ExpandConfig{
			Enabled:            true,
			SiblingWindow:      2,
			MaxChunksPerSource: 8,
			Concurrency:        4,
			FetchTimeout:       2 * time.Second,
		},
		Engine: EngineConfig{
			DefaultLimit:   10,
			CandidateLimit: 50,
			SearchTimeout:  5 * time.Second,
		},
		Embed: EmbedConfig{
			Provider:   "static",
			Dimensions: 256,
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Timeout:    10 * time.Second,
		},
		Eval: EvalConfig{
			BaseURL: "http://localhost:8090",
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".retrieval"
	}
	return home + "/.retrieval"
}

// Load reads the config file at path (optional; "" means defaults only)
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfigInvalid, "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.CodeConfigInvalid, "parse config file", err)
		}
	}
	applyEnv(cfg)
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Logging.Dir = expandHome(cfg.Logging.Dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandHome resolves a leading ~ against the user's home directory so
// templated paths like ~/.retrieval work regardless of working
// directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// Environment variable names. The two kill switches also accept their
// bare legacy names.
const (
	EnvChunkFilter       = "RETRIEVAL_ENABLE_CHUNK_FILTER"
	EnvCodeFilter        = "RETRIEVAL_ENABLE_CODE_FILTER"
	EnvChunkFilterLegacy = "ENABLE_CHUNK_FILTER"
	EnvCodeFilterLegacy  = "ENABLE_CODE_FILTER"
	EnvDataDir           = "RETRIEVAL_DATA_DIR"
	EnvSparseBackend     = "RETRIEVAL_SPARSE_BACKEND"
	EnvMinTokens         = "RETRIEVAL_MIN_TOKENS"
	EnvLogLevel          = "RETRIEVAL_LOG_LEVEL"
	EnvOllamaURL         = "RETRIEVAL_OLLAMA_URL"
	EnvEvalURL           = "RETRIEVAL_EVAL_URL"
)

func applyEnv(cfg *Config) {
	if v, ok := lookupBool(EnvChunkFilter, EnvChunkFilterLegacy); ok {
		cfg.Filter.EnableChunkFilter = v
	}
	if v, ok := lookupBool(EnvCodeFilter, EnvCodeFilterLegacy); ok {
		cfg.Filter.EnableCodeFilter = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvSparseBackend); v != "" {
		cfg.Sparse.Backend = v
	}
	if v := os.Getenv(EnvMinTokens); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Filter.MinTokens = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvOllamaURL); v != "" {
		cfg.Embed.OllamaURL = v
	}
	if v := os.Getenv(EnvEvalURL); v != "" {
		cfg.Eval.BaseURL = v
		cfg.Eval.Enabled = true
	}
}

func lookupBool(names ...string) (bool, bool) {
	for _, name := range names {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true, true
		case "0", "false", "no", "off":
			return false, true
		}
	}
	return false, false
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Sparse.Backend {
	case "memory", "sqlite", "bleve":
	default:
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("unknown sparse backend %q", c.Sparse.Backend))
	}
	if c.Fusion.Alpha < 0 || c.Fusion.Alpha > 1 {
		return errors.New(errors.CodeConfigInvalid, "fusion alpha must be in [0, 1]").
			WithDetail("alpha", c.Fusion.Alpha)
	}
	if c.Filter.MinTokens < 0 {
		return errors.New(errors.CodeConfigInvalid, "min_tokens must not be negative")
	}
	if c.Expand.SiblingWindow < 1 {
		return errors.New(errors.CodeConfigInvalid, "sibling_window must be at least 1")
	}
	if c.Expand.MaxChunksPerSource < 1 {
		return errors.New(errors.CodeConfigInvalid, "max_chunks_per_source must be positive")
	}
	switch c.Embed.Provider {
	case "static", "ollama":
	default:
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("unknown embed provider %q", c.Embed.Provider))
	}
	return nil
}
