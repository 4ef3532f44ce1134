package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// DefaultGeminiModel is the Gemini embedding model used when none is configured.
const DefaultGeminiModel = "text-embedding-004"

// GeminiConfig configures the Gemini embedding API.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // overrides the API endpoint, for proxies and tests
	Dimensions int    // requested output dimensionality; 0 uses the model default
	BatchSize  int
	Timeout    time.Duration
}

// Gemini embeds text with the Gemini embedding API.
type Gemini struct {
	client    *genai.Client
	model     string
	batchSize int
	timeout   time.Duration
	request   *genai.EmbedContentConfig
	logger    *slog.Logger

	mu         sync.RWMutex
	dimensions int
	closed     bool
}

// NewGemini creates a Gemini embedder. An API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, dsherrors.ConfigError("gemini embeddings need an API key", nil).
			WithSuggestion("Set GEMINI_API_KEY or embeddings.api_key_env in .dsh.yaml")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
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

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, dsherrors.ConfigError("failed to create gemini client", err)
	}

	request := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if cfg.Dimensions > 0 {
		d := int32(cfg.Dimensions)
		request.OutputDimensionality = &d
	}

	return &Gemini{
		client:     client,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		timeout:    cfg.Timeout,
		request:    request,
		dimensions: cfg.Dimensions,
		logger:     logger.With(slog.String("component", "gemini-embedder")),
	}, nil
}

// Embed generates embedding for a single text.
func (e *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, batchSize per request.
func (e *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if e.isClosed() {
		return nil, fmt.Errorf("embedder is closed")
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Gemini) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}

	resp, err := e.client.Models.EmbedContent(reqCtx, e.model, contents, e.request)
	if err != nil {
		e.logger.Debug("embedding request failed",
			slog.Int("count", len(texts)),
			slog.String("error", err.Error()))
		return nil, classifyGeminiError(ctx, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, dsherrors.New(dsherrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("provider returned %d embeddings for %d texts", got, len(texts)), nil)
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, dsherrors.New(dsherrors.ErrCodeEmbeddingFailed, "provider returned an empty embedding", nil)
		}
		if err := e.checkDimensions(len(emb.Values)); err != nil {
			return nil, err
		}
		out[i] = normalizeVector(emb.Values)
	}
	return out, nil
}

func (e *Gemini) checkDimensions(got int) error {
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

// Dimensions returns the embedding dimension, or 0 until known.
func (e *Gemini) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *Gemini) ModelName() string {
	return "gemini/" + e.model
}

// Available embeds a probe string with a short timeout.
func (e *Gemini) Available(ctx context.Context) bool {
	if e.isClosed() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

// Close marks the embedder closed.
func (e *Gemini) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Gemini) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// classifyGeminiError turns API status codes into HTTPError so throttling
// and server errors are retried.
func classifyGeminiError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return dsherrors.Permanent(parent.Err())
	}
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return &dsherrors.HTTPError{Op: "embed", URL: "gemini", StatusCode: apiErr.Code, Status: apiErr.Message}
	}
	if dsherrors.Classify(err) != dsherrors.KindPermanent {
		return err
	}
	return dsherrors.New(dsherrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
}
