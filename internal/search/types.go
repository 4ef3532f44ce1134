// Package search provides hybrid dataset search combining keyword and
// semantic retrieval. Ranked lists are fused using Reciprocal Rank Fusion
// (RRF) and exact title or keyword matches are boosted.
package search

import (
	"context"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
)

// QueryClass is the shape of a query, used to pick the retrieval strategy.
type QueryClass string

const (
	// ClassIdentifier is a dataset UUID; it bypasses fusion.
	ClassIdentifier QueryClass = "identifier"
	// ClassShort has at most two tokens and favours keyword matches.
	ClassShort QueryClass = "short"
	// ClassTitleLike is a quoted fragment of a known title.
	ClassTitleLike QueryClass = "title_like"
	// ClassNormal is any other free-text query.
	ClassNormal QueryClass = "normal"
)

// Mode reports which retrieval paths produced a response.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeLookup   Mode = "lookup"
	ModeNone     Mode = "none"
)

// Hit is one ranked search result.
type Hit struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords,omitempty"`

	// Score is the display score in [0,1]: RRF normalised by the best
	// hit plus the exact-match bonus, clamped.
	Score float64 `json:"score"`

	// RRFScore is the raw fused score.
	RRFScore float64 `json:"rrf_score"`

	// SemanticRank and KeywordRank are 1-based positions, 0 if absent.
	SemanticRank int  `json:"semantic_rank,omitempty"`
	KeywordRank  int  `json:"keyword_rank,omitempty"`
	FromSemantic bool `json:"from_semantic"`
	FromKeyword  bool `json:"from_keyword"`
	ExactMatch   bool `json:"exact_match"`
}

// Response is the result of one search.
type Response struct {
	Query    string     `json:"query"`
	Class    QueryClass `json:"class"`
	Mode     Mode       `json:"mode"`
	Hits     []*Hit     `json:"hits"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Retriever returns dataset IDs matching query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]string, error)
}

// KeywordRetriever is the keyword (BM25) retrieval path.
type KeywordRetriever = Retriever

// SemanticRetriever is the embedding retrieval path.
type SemanticRetriever = Retriever

// Lookup loads datasets for identifier queries and hit hydration.
type Lookup interface {
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
	GetMany(ctx context.Context, ids []string) (map[string]*dataset.Dataset, error)
}

// Default engine configuration values.
const (
	// DefaultRRFConstant is the standard RRF smoothing parameter.
	DefaultRRFConstant = 60

	// DefaultShortQueryKeywordWeight multiplies the keyword weight for short queries.
	DefaultShortQueryKeywordWeight = 1.5

	// DefaultExactMatchBonus is added to the display score of exact matches.
	DefaultExactMatchBonus = 0.25

	DefaultLimit           = 10
	MaxLimit               = 100
	DefaultCandidateLimit  = 50
	DefaultSemanticTimeout = 5 * time.Second
)

// Config tunes ranking.
type Config struct {
	// RRFConstant is k in Σ w/(k + rank).
	RRFConstant int

	// ShortQueryKeywordWeight is the keyword weight for short queries (> 1).
	ShortQueryKeywordWeight float64

	// ExactMatchBonus is added to exact matches' display score.
	ExactMatchBonus float64

	// CandidateLimit is how many IDs each retriever returns before fusion.
	CandidateLimit int

	// SemanticTimeout bounds the semantic path. On expiry the query
	// degrades to keyword-only.
	SemanticTimeout time.Duration
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() Config {
	return Config{
		RRFConstant:             DefaultRRFConstant,
		ShortQueryKeywordWeight: DefaultShortQueryKeywordWeight,
		ExactMatchBonus:         DefaultExactMatchBonus,
		CandidateLimit:          DefaultCandidateLimit,
		SemanticTimeout:         DefaultSemanticTimeout,
	}
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RRFConstant <= 0 {
		c.RRFConstant = d.RRFConstant
	}
	if c.ShortQueryKeywordWeight <= 0 {
		c.ShortQueryKeywordWeight = d.ShortQueryKeywordWeight
	}
	if c.ExactMatchBonus < 0 {
		c.ExactMatchBonus = 0
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.SemanticTimeout <= 0 {
		c.SemanticTimeout = d.SemanticTimeout
	}
	return c
}
