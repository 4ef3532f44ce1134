package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MaxBatchSize is the maximum number of texts sent to a remote provider in one request
	MaxBatchSize = 64

	// DefaultBatchSize is the default batch size for backfill requests
	DefaultBatchSize = 16

	// DefaultTimeout bounds a single embedding request
	DefaultTimeout = 60 * time.Second
)

// Static embedder constants
const (
	// StaticDimensions is the default embedding dimension for the static embedder
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension, or 0 until it is known
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
