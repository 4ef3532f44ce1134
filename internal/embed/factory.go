package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, deterministic)
	ProviderStatic ProviderType = "static"

	// ProviderOpenAI uses any OpenAI-compatible /embeddings endpoint
	ProviderOpenAI ProviderType = "openai"

	// ProviderOllama is ProviderOpenAI pointed at a local Ollama server
	ProviderOllama ProviderType = "ollama"

	// ProviderGemini uses the Gemini embedding API
	ProviderGemini ProviderType = "gemini"

	// ProviderNone disables embeddings; search runs keyword-only
	ProviderNone ProviderType = "none"
)

// Config selects and configures an embedder.
type Config struct {
	Provider   ProviderType
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	CacheSize  int // < 0 disables the cache, 0 uses DefaultCacheSize
	BatchSize  int
	Timeout    time.Duration
}

// New creates the embedder described by cfg, wrapped in an LRU cache unless
// disabled. ProviderNone returns a nil Embedder and no error.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch cfg.Provider {
	case ProviderNone:
		return nil, nil

	case ProviderStatic, "":
		embedder = NewStaticEmbedder(cfg.Dimensions)

	case ProviderOpenAI, ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == ProviderOpenAI {
			baseURL = "https://api.openai.com/v1"
		}
		embedder, err = NewOpenAI(OpenAIConfig{
			BaseURL:    baseURL,
			Model:      cfg.Model,
			Token:      cfg.APIKey,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		}, logger)

	case ProviderGemini:
		embedder, err = NewGemini(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			cfg.Provider, strings.Join(ValidProviders(), ", "))
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize >= 0 {
		embedder = NewCached(embedder, cfg.CacheSize)
	}
	return embedder, nil
}

// ParseProvider converts a string to ProviderType. Unknown names are
// returned as-is so New can report them.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic
	case "openai":
		return ProviderOpenAI
	case "ollama":
		return ProviderOllama
	case "gemini", "google":
		return ProviderGemini
	case "none", "off", "disabled":
		return ProviderNone
	default:
		return ProviderType(strings.ToLower(s))
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderStatic),
		string(ProviderOpenAI),
		string(ProviderOllama),
		string(ProviderGemini),
		string(ProviderNone),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	p := ParseProvider(s)
	for _, valid := range ValidProviders() {
		if string(p) == valid {
			return true
		}
	}
	return false
}

// Info describes an embedder for status output.
type Info struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Cached     bool
}

// GetInfo returns information about an embedder without calling the provider.
func GetInfo(embedder Embedder) Info {
	if embedder == nil {
		return Info{Provider: ProviderNone}
	}
	info := Info{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
	}

	inner := embedder
	if cached, ok := embedder.(*Cached); ok {
		info.Cached = true
		inner = cached.Inner()
	}

	switch inner.(type) {
	case *OpenAI:
		info.Provider = ProviderOpenAI
	case *Gemini:
		info.Provider = ProviderGemini
	default:
		info.Provider = ProviderStatic
	}
	return info
}
