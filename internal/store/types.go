// Package store provides the persistence layer: the SQLite dataset
// repository, keyword indexes (Bleve or SQLite FTS5), the HNSW vector
// store, ingestion checkpoints and run history.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// ErrNotFound is returned when a dataset is not in the repository.
var ErrNotFound = stderrors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = stderrors.New("store is closed")

// State keys for the repository's key-value table.
const (
	// StateKeyEmbeddingModel records the model the vector store was built with.
	StateKeyEmbeddingModel = "embedding_model"
	// StateKeyEmbeddingDimensions records the vector dimension.
	StateKeyEmbeddingDimensions = "embedding_dimensions"
)

// CurrentSchemaVersion is the current dataset database schema version.
const CurrentSchemaVersion = 1

// KeywordDocument is a dataset as seen by a keyword index.
type KeywordDocument struct {
	ID       string
	Title    string
	Content  string // abstract and lineage
	Keywords []string
}

// KeywordResult is one keyword search hit.
type KeywordResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about a keyword index.
type IndexStats struct {
	DocumentCount int
}

// KeywordIndex provides BM25 keyword search over datasets.
type KeywordIndex interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, docs []*KeywordDocument) error

	// Search returns documents matching query, best first.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes documents.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns every indexed document ID.
	AllIDs() ([]string, error)

	Stats() *IndexStats
	Close() error
}

// KeywordConfig configures a keyword index.
type KeywordConfig struct {
	// StopWords are dropped at index and query time.
	StopWords []string

	// MinTokenLength is the minimum token length to index (default: 2).
	MinTokenLength int

	// TitleBoost weights title matches over body matches (default: 2.0).
	TitleBoost float64

	// KeywordBoost weights keyword matches over body matches (default: 1.5).
	KeywordBoost float64
}

// DefaultKeywordConfig returns the default keyword index configuration.
func DefaultKeywordConfig() KeywordConfig {
	return KeywordConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
		TitleBoost:     2.0,
		KeywordBoost:   1.5,
	}
}

// DefaultStopWords are common English words with no retrieval value in
// catalogue metadata.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"in", "into", "is", "it", "of", "on", "or", "that", "the", "this",
	"to", "was", "were", "which", "with",
}

// VectorResult is a single vector search result.
type VectorResult struct {
	ID       string
	Distance float32 // lower is more similar (0-2 for cosine)
	Score    float32 // normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int

	// Metric is the distance metric: "cos" or "l2" (default: "cos").
	Metric string

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// DefaultVectorStoreConfig returns defaults for the given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides approximate nearest-neighbour search.
type VectorStore interface {
	// Add inserts vectors with their IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbours of query.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int

	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a vector of the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'dsh embed --rebuild')", e.Expected, e.Got)
}

// Kind marks dimension mismatches as permanent.
func (e ErrDimensionMismatch) Kind() dsherrors.Kind {
	return dsherrors.KindPermanent
}

// Checkpoint is the persisted progress of one ingestion partition.
type Checkpoint struct {
	Partition string    `json:"partition"`
	Completed []string  `json:"completed"`
	LastIndex int       `json:"last_index"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contains reports whether id has been checkpointed.
func (c *Checkpoint) Contains(id string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Completed, id)
}

// Set returns the completed IDs as a set.
func (c *Checkpoint) Set() map[string]struct{} {
	if c == nil {
		return map[string]struct{}{}
	}
	set := make(map[string]struct{}, len(c.Completed))
	for _, id := range c.Completed {
		set[id] = struct{}{}
	}
	return set
}

// RunRecord is one persisted ingestion run.
type RunRecord struct {
	ID        int64
	StartedAt time.Time
	EndedAt   time.Time
	Succeeded int
	Embedded  int
	Failed    int
	Skipped   int
	Pending   int
	Failures  []FailureRecord
}

// FailureRecord is one persisted failed record.
type FailureRecord struct {
	DatasetID    string
	Stage        string
	Kind         string
	Message      string
	Attempts     int
	FirstAttempt time.Time
	LastAttempt  time.Time
}
