// Package config loads dsh configuration from defaults, YAML files and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// Config represents the complete dsh configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Catalogue  CatalogueConfig  `yaml:"catalogue" json:"catalogue"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// CatalogueConfig configures the metadata catalogue client.
type CatalogueConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Format is the requested document representation: "json" or "gemini".
	Format    string        `yaml:"format" json:"format"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// PipelineConfig configures ingestion.
type PipelineConfig struct {
	// Shards is the number of concurrent partitions (1 = sequential).
	Shards int `yaml:"shards" json:"shards"`

	// RequestsPerSecond and Burst size the fetch rate gate shared by all
	// shards.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`

	Retry RetryConfig `yaml:"retry" json:"retry"`

	// RetryParse retries parse failures instead of failing them at once.
	RetryParse bool `yaml:"retry_parse" json:"retry_parse"`

	// EmbedFatal fails a record whose embedding fails.
	EmbedFatal bool `yaml:"embed_fatal" json:"embed_fatal"`

	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
}

// RetryConfig holds the retry policy of each pipeline stage.
type RetryConfig struct {
	Fetch RetryPolicy `yaml:"fetch" json:"fetch"`
	Parse RetryPolicy `yaml:"parse" json:"parse"`
	Store RetryPolicy `yaml:"store" json:"store"`
	Embed RetryPolicy `yaml:"embed" json:"embed"`
}

// RetryPolicy configures retries for one stage.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// CheckpointConfig configures resume state.
type CheckpointConfig struct {
	// Backend is "file" (one JSON file per partition) or "badger".
	Backend string `yaml:"backend" json:"backend"`
	// Dir defaults to <data_dir>/checkpoints.
	Dir string `yaml:"dir" json:"dir"`
}

// SearchConfig configures rank fusion.
// Values can be tuned via:
//  1. User config (~/.config/dsh/config.yaml) - personal defaults
//  2. Project config (.dsh.yaml) - per-directory tuning
//  3. Env vars (DSH_RRF_CONSTANT) - highest priority
type SearchConfig struct {
	// RRFConstant is the RRF smoothing parameter (k). Default: 60.
	RRFConstant int `yaml:"rrf_k" json:"rrf_k"`

	// ShortQueryKeywordWeight multiplies the keyword weight for queries
	// of at most two tokens. Must be >= 1.
	ShortQueryKeywordWeight float64 `yaml:"short_query_keyword_weight" json:"short_query_keyword_weight"`

	// ExactMatchBonus is added to the display score of exact title or
	// keyword matches (0-1).
	ExactMatchBonus float64 `yaml:"exact_match_bonus" json:"exact_match_bonus"`

	CandidateLimit  int           `yaml:"candidate_limit" json:"candidate_limit"`
	SemanticTimeout time.Duration `yaml:"semantic_timeout" json:"semantic_timeout"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of static, openai, ollama, gemini or none.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	BaseURL  string `yaml:"base_url" json:"base_url"`

	// APIKeyEnv names the environment variable holding the API key. The
	// key itself is never stored in config files.
	APIKeyEnv  string `yaml:"api_key_env" json:"api_key_env"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// KeywordBackend is "bleve" (default) or "sqlite".
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// Project config file names, in lookup order.
var projectFiles = []string{".dsh.yaml", ".dsh.yml"}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Catalogue: CatalogueConfig{
			BaseURL:   "https://catalogue.ceh.ac.uk",
			Format:    "json",
			Timeout:   30 * time.Second,
			UserAgent: "dsh-harvester/1.0",
		},
		Pipeline: PipelineConfig{
			Shards:            1,
			RequestsPerSecond: 5,
			Burst:             5,
			Retry: RetryConfig{
				Fetch: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
				Parse: RetryPolicy{MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Second},
				Store: RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second},
				Embed: RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
			},
			Checkpoint: CheckpointConfig{Backend: "file"},
		},
		Search: SearchConfig{
			RRFConstant:             60,
			ShortQueryKeywordWeight: 1.5,
			ExactMatchBonus:         0.25,
			CandidateLimit:          50,
			SemanticTimeout:         5 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static", // offline and deterministic
			CacheSize: 1000,
		},
		Storage: StorageConfig{
			DataDir:        defaultDataDir(),
			KeywordBackend: "bleve",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns ~/.dsh/data.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".dsh", "data")
	}
	return filepath.Join(home, ".dsh", "data")
}

// CheckpointDir returns the checkpoint directory, defaulting to
// <data_dir>/checkpoints.
func (c *Config) CheckpointDir() string {
	if c.Pipeline.Checkpoint.Dir != "" {
		return c.Pipeline.Checkpoint.Dir
	}
	return filepath.Join(c.Storage.DataDir, "checkpoints")
}

// APIKey reads the embedding API key from the configured variable.
func (c *Config) APIKey() string {
	if c.Embeddings.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Embeddings.APIKeyEnv)
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/dsh/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/dsh/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dsh", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "dsh", "config.yaml")
	}
	return filepath.Join(home, ".config", "dsh", "config.yaml")
}

// Load loads configuration for the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/dsh/config.yaml)
//  3. Project config (.dsh.yaml or .dsh.yml in dir)
//  4. Environment variables (DSH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, dsherrors.ConfigError("failed to load user config", err).
				WithDetail("path", path)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, dsherrors.ConfigError("failed to load project config", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, dsherrors.ConfigError("invalid environment override", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, dsherrors.ConfigError("invalid configuration", err).
			WithSuggestion("Check the values in .dsh.yaml and DSH_* variables")
	}
	return cfg, nil
}

// loadFromDir loads the first project config file found in dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range projectFiles {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path over the current values. Keys absent from the
// file keep their current value; on error c is unchanged.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	merged := *c
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	*c = merged
	return nil
}

// applyEnvOverrides applies DSH_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"DSH_CATALOGUE_URL":       &c.Catalogue.BaseURL,
		"DSH_FORMAT":              &c.Catalogue.Format,
		"DSH_DATA_DIR":            &c.Storage.DataDir,
		"DSH_KEYWORD_BACKEND":     &c.Storage.KeywordBackend,
		"DSH_CHECKPOINT_BACKEND":  &c.Pipeline.Checkpoint.Backend,
		"DSH_EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"DSH_EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"DSH_EMBEDDINGS_BASE_URL": &c.Embeddings.BaseURL,
		"DSH_LOG_LEVEL":           &c.Logging.Level,
	}
	for name, dst := range str {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	// DSH_EMBEDDER is an alias for DSH_EMBEDDINGS_PROVIDER
	if v := strings.TrimSpace(os.Getenv("DSH_EMBEDDER")); v != "" {
		c.Embeddings.Provider = v
	}

	if v := os.Getenv("DSH_SHARDS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DSH_SHARDS: %w", err)
		}
		c.Pipeline.Shards = n
	}
	if v := os.Getenv("DSH_RPS"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("DSH_RPS: %w", err)
		}
		c.Pipeline.RequestsPerSecond = f
	}
	if v := os.Getenv("DSH_RRF_CONSTANT"); v != "" {
		k, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DSH_RRF_CONSTANT: %w", err)
		}
		c.Search.RRFConstant = k
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Catalogue.Format) {
	case "json", "gemini", "xml":
	default:
		return fmt.Errorf("catalogue.format must be 'json' or 'gemini', got %q", c.Catalogue.Format)
	}
	if c.Catalogue.Timeout < 0 {
		return fmt.Errorf("catalogue.timeout must be non-negative, got %s", c.Catalogue.Timeout)
	}

	p := c.Pipeline
	if p.Shards < 1 {
		return fmt.Errorf("pipeline.shards must be at least 1, got %d", p.Shards)
	}
	if p.RequestsPerSecond < 0 {
		return fmt.Errorf("pipeline.requests_per_second must be non-negative, got %g", p.RequestsPerSecond)
	}
	if p.RequestsPerSecond > 0 && p.Burst < 1 {
		return fmt.Errorf("pipeline.burst must be at least 1, got %d", p.Burst)
	}
	for name, rp := range map[string]RetryPolicy{
		"fetch": p.Retry.Fetch, "parse": p.Retry.Parse, "store": p.Retry.Store, "embed": p.Retry.Embed,
	} {
		if err := rp.RetryConfig().Validate(); err != nil {
			return fmt.Errorf("pipeline.retry.%s: %w", name, err)
		}
	}
	switch p.Checkpoint.Backend {
	case "file", "badger":
	default:
		return fmt.Errorf("pipeline.checkpoint.backend must be 'file' or 'badger', got %q", p.Checkpoint.Backend)
	}

	s := c.Search
	if s.RRFConstant < 1 {
		return fmt.Errorf("search.rrf_k must be positive, got %d", s.RRFConstant)
	}
	if s.ShortQueryKeywordWeight < 1 {
		return fmt.Errorf("search.short_query_keyword_weight must be >= 1, got %g", s.ShortQueryKeywordWeight)
	}
	if s.ExactMatchBonus < 0 || s.ExactMatchBonus > 1 {
		return fmt.Errorf("search.exact_match_bonus must be between 0 and 1, got %g", s.ExactMatchBonus)
	}
	if s.CandidateLimit < 1 {
		return fmt.Errorf("search.candidate_limit must be positive, got %d", s.CandidateLimit)
	}
	if s.SemanticTimeout <= 0 {
		return fmt.Errorf("search.semantic_timeout must be positive, got %s", s.SemanticTimeout)
	}

	validProviders := map[string]bool{"static": true, "openai": true, "ollama": true, "gemini": true, "none": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static', 'openai', 'ollama', 'gemini' or 'none', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	switch c.Storage.KeywordBackend {
	case "bleve", "sqlite":
	default:
		return fmt.Errorf("storage.keyword_backend must be 'bleve' or 'sqlite', got %q", c.Storage.KeywordBackend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 1 || c.Logging.MaxFiles < 1 {
		return fmt.Errorf("logging.max_size_mb and logging.max_files must be at least 1")
	}
	return nil
}

// RetryConfig converts the policy to a retrier configuration, keeping the
// default backoff shape.
func (p RetryPolicy) RetryConfig() dsherrors.RetryConfig {
	cfg := dsherrors.DefaultRetryConfig()
	cfg.MaxAttempts = p.MaxAttempts
	cfg.BaseDelay = p.BaseDelay
	cfg.MaxDelay = p.MaxDelay
	return cfg
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
