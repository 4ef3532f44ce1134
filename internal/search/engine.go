package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

// Engine answers dataset queries by fusing keyword and semantic rankings.
type Engine struct {
	keyword  KeywordRetriever
	semantic SemanticRetriever // optional
	lookup   Lookup
	breaker  *dsherrors.CircuitBreaker
	fusion   *RRFFusion
	cfg      Config
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSemantic enables the semantic retrieval path.
func WithSemantic(r SemanticRetriever) EngineOption {
	return func(e *Engine) {
		e.semantic = r
	}
}

// WithConfig sets the ranking configuration. Zero fields take defaults.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) {
		e.cfg = cfg.withDefaults()
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBreaker replaces the circuit breaker guarding the semantic path.
func WithBreaker(cb *dsherrors.CircuitBreaker) EngineOption {
	return func(e *Engine) {
		if cb != nil {
			e.breaker = cb
		}
	}
}

// NewEngine creates a search engine. keyword and lookup are required;
// without WithSemantic every query is keyword-only.
func NewEngine(keyword KeywordRetriever, lookup Lookup, opts ...EngineOption) (*Engine, error) {
	if keyword == nil {
		return nil, fmt.Errorf("%w: keyword retriever is required", dsherrors.ErrNilDependency)
	}
	if lookup == nil {
		return nil, fmt.Errorf("%w: lookup is required", dsherrors.ErrNilDependency)
	}

	e := &Engine{
		keyword: keyword,
		lookup:  lookup,
		breaker: dsherrors.NewCircuitBreaker("semantic"),
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.fusion = NewRRFFusion(e.cfg.RRFConstant)
	return e, nil
}

// Config returns the engine's ranking configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Search runs query and returns up to topK hits. topK <= 0 means
// DefaultLimit; values above MaxLimit are capped.
//
// Retrieval failures degrade the response instead of failing it: the
// Mode and Warnings fields say what happened. Only a blank query or a
// cancelled context return an error.
func (e *Engine) Search(ctx context.Context, query string, topK int) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, dsherrors.New(dsherrors.ErrCodeQueryEmpty, "search query is empty", dsherrors.ErrEmptyQuery)
	}
	switch {
	case topK <= 0:
		topK = DefaultLimit
	case topK > MaxLimit:
		topK = MaxLimit
	}

	start := time.Now()
	class := Classify(query)
	resp := &Response{Query: query, Class: class, Hits: []*Hit{}}

	if class == ClassIdentifier {
		if err := e.lookupIdentifier(ctx, strings.TrimSpace(query), resp); err != nil {
			return nil, err
		}
		e.logDone(resp, start)
		return resp, nil
	}

	text := searchText(query, class)
	semIDs, kwIDs, semErr, kwErr := e.retrieve(ctx, text)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case semErr == nil && kwErr == nil:
		resp.Mode = ModeHybrid
	case semErr != nil && kwErr == nil:
		resp.Mode = ModeKeyword
		semIDs = nil
	case semErr == nil && kwErr != nil:
		resp.Mode = ModeSemantic
		kwIDs = nil
	default:
		resp.Mode = ModeNone
	}
	if semErr != nil && !errors.Is(semErr, errSemanticDisabled) {
		resp.Warnings = append(resp.Warnings, "semantic search unavailable: "+semErr.Error())
	}
	if kwErr != nil {
		resp.Warnings = append(resp.Warnings, "keyword search unavailable: "+kwErr.Error())
	}
	if resp.Mode == ModeNone {
		e.logDone(resp, start)
		return resp, nil
	}

	hits := e.fusion.Fuse(semIDs, kwIDs, WeightsFor(class, e.cfg))
	hits = e.hydrate(ctx, hits, resp)
	ApplyExactMatch(hits, text, e.cfg.ExactMatchBonus)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	resp.Hits = hits

	e.logDone(resp, start)
	return resp, nil
}

var errSemanticDisabled = errors.New("semantic retrieval not configured")

// retrieve runs both retrieval paths concurrently. Path errors are
// returned separately so either side can fail alone.
func (e *Engine) retrieve(ctx context.Context, text string) (semIDs, kwIDs []string, semErr, kwErr error) {
	limit := e.cfg.CandidateLimit
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		kwIDs, kwErr = e.keyword.Retrieve(gctx, text, limit)
		return nil // don't cancel the semantic path
	})

	g.Go(func() error {
		semIDs, semErr = e.retrieveSemantic(gctx, text, limit)
		return nil
	})

	_ = g.Wait()
	return semIDs, kwIDs, semErr, kwErr
}

// retrieveSemantic runs the semantic path behind the circuit breaker and
// the semantic timeout.
func (e *Engine) retrieveSemantic(ctx context.Context, text string, limit int) ([]string, error) {
	if e.semantic == nil {
		return nil, errSemanticDisabled
	}
	if !e.breaker.Allow() {
		return nil, dsherrors.ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SemanticTimeout)
	defer cancel()

	ids, err := e.semantic.Retrieve(ctx, text, limit)
	if err != nil {
		e.breaker.RecordFailure()
		return nil, err
	}
	e.breaker.RecordSuccess()
	return ids, nil
}

// lookupIdentifier answers a UUID query from the repository.
func (e *Engine) lookupIdentifier(ctx context.Context, id string, resp *Response) error {
	resp.Mode = ModeLookup
	ds, err := e.lookup.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		resp.Mode = ModeNone
		resp.Warnings = append(resp.Warnings, "lookup failed: "+err.Error())
		return nil
	}

	resp.Hits = []*Hit{{
		ID:         ds.Identifier,
		Title:      ds.Title,
		Keywords:   ds.Keywords,
		Score:      1.0,
		RRFScore:   1.0,
		ExactMatch: true,
	}}
	return nil
}

// hydrate fills titles and keywords, dropping ids the repository no
// longer holds. If the repository cannot be read the hits are kept bare.
func (e *Engine) hydrate(ctx context.Context, hits []*Hit, resp *Response) []*Hit {
	if len(hits) == 0 {
		return hits
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}

	found, err := e.lookup.GetMany(ctx, ids)
	if err != nil {
		e.logger.Warn("search_hydrate_failed", slog.String("error", err.Error()))
		resp.Warnings = append(resp.Warnings, "could not load dataset details: "+err.Error())
		return hits
	}

	out := hits[:0]
	for _, h := range hits {
		ds, ok := found[h.ID]
		if !ok {
			continue
		}
		h.Title = ds.Title
		h.Keywords = ds.Keywords
		out = append(out, h)
	}
	return out
}

func (e *Engine) logDone(resp *Response, start time.Time) {
	e.logger.Debug("search_completed",
		slog.String("query", resp.Query),
		slog.String("class", string(resp.Class)),
		slog.String("mode", string(resp.Mode)),
		slog.Int("hits", len(resp.Hits)),
		slog.Int("warnings", len(resp.Warnings)),
		slog.Duration("duration", time.Since(start)))
}
