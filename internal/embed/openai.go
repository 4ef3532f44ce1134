package embed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// Default OpenAI-compatible endpoint settings. Ollama serves the same API
// under /v1, so a local model works without a key.
const (
	DefaultOpenAIBaseURL = "http://localhost:11434/v1"
	DefaultOpenAIModel   = "nomic-embed-text"
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	BaseURL    string
	Model      string
	Token      string
	Dimensions int // expected size; 0 learns it from the first response
	BatchSize  int
	Timeout    time.Duration
}

// OpenAI embeds text through any OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	embedder embeddings.Embedder
	model    string
	baseURL  string
	timeout  time.Duration
	logger   *slog.Logger

	mu         sync.RWMutex
	dimensions int
	closed     bool
}

// NewOpenAI creates an OpenAI-compatible embedder. No request is made until
// the first Embed call.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Token == "" {
		// local services ignore the token but the client requires one
		cfg.Token = "none"
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, dsherrors.ConfigError("failed to create embedding client", err).
			WithDetail("base_url", cfg.BaseURL)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.BatchSize),
	)
	if err != nil {
		return nil, dsherrors.ConfigError("failed to create embedder", err)
	}

	return &OpenAI{
		embedder:   embedder,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		dimensions: cfg.Dimensions,
		logger:     logger.With(slog.String("component", "openai-embedder")),
	}, nil
}

// Embed generates embedding for a single text.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	vecs, err := e.embedder.EmbedDocuments(reqCtx, texts)
	if err != nil {
		e.logger.Debug("embedding request failed",
			slog.Int("count", len(texts)),
			slog.String("error", err.Error()))
		return nil, classifyEmbedError(ctx, e.baseURL, err)
	}
	if len(vecs) != len(texts) {
		return nil, dsherrors.New(dsherrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("provider returned %d embeddings for %d texts", len(vecs), len(texts)), nil)
	}

	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		if err := e.checkDimensions(len(v)); err != nil {
			return nil, err
		}
		out[i] = normalizeVector(v)
	}

	e.logger.Debug("embedded batch",
		slog.Int("count", len(texts)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// checkDimensions learns the dimension from the first response and rejects
// any later vector of a different size.
func (e *OpenAI) checkDimensions(got int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dimensions == 0 {
		e.dimensions = got
		return nil
	}
	if got != e.dimensions {
		return dsherrors.New(dsherrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, expected %d", got, e.dimensions), nil)
	}
	return nil
}

// Dimensions returns the embedding dimension, or 0 before the first call
// when it was not configured.
func (e *OpenAI) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OpenAI) ModelName() string {
	return e.model
}

// Available embeds a probe string with a short timeout.
func (e *OpenAI) Available(ctx context.Context) bool {
	if e.isClosed() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

// Close marks the embedder closed.
func (e *OpenAI) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *OpenAI) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

var statusCodePattern = regexp.MustCompile(`status code:? (\d{3})`)

// classifyEmbedError maps a provider failure onto an error kind. The
// provider client reports HTTP failures as text, so the status code is
// recovered from the message when it is not otherwise classifiable.
func classifyEmbedError(parent context.Context, url string, err error) error {
	if parent.Err() != nil {
		return dsherrors.Permanent(parent.Err())
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return &dsherrors.HTTPError{Op: "embed", URL: url, StatusCode: code, Status: strings.TrimSpace(err.Error())}
	}
	if dsherrors.Classify(err) != dsherrors.KindPermanent {
		return err
	}
	return dsherrors.New(dsherrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
}
