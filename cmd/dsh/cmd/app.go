package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/config"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/embed"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

// File names under the data directory.
const (
	datasetsDBName = "datasets.db"
	vectorsName    = "vectors.hnsw"
	lockName       = "ingest.lock"
)

// stateEmbeddingModel records the model that produced the stored vectors.
const stateEmbeddingModel = "embedding_model"

// app holds the stores shared by the commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sql.DB
	repo     *store.Repository
	runs     *store.SQLiteRuns
	vectors  *store.HNSWStore
	embedder embed.Embedder

	// staleVectors is set when the stored vectors were produced by a
	// different model or dimension than the configured embedder.
	staleVectors bool
}

// openApp opens the data directory. The embedder is created only when
// withEmbedder is set; a "none" provider leaves it nil.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withEmbedder bool) (*app, error) {
	dataDir := cfg.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, dsherrors.StorageError("failed to create data directory", err).
			WithDetail("path", dataDir)
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	db, err := store.OpenSQLite(filepath.Join(dataDir, datasetsDBName))
	if err != nil {
		return nil, err
	}
	a.db = db

	datasets, err := store.NewSQLiteDatasets(ctx, db)
	if err != nil {
		return nil, err
	}
	runs, err := store.NewSQLiteRuns(ctx, db)
	if err != nil {
		return nil, err
	}
	a.runs = runs

	backend := cfg.Storage.KeywordBackend
	if existing := store.DetectKeywordBackend(dataDir); existing != "" && string(existing) != backend {
		logger.Warn("keyword index exists for another backend",
			slog.String("configured", backend),
			slog.String("existing", string(existing)))
	}
	keyword, err := store.NewKeywordIndex(dataDir, store.DefaultKeywordConfig(), backend)
	if err != nil {
		return nil, dsherrors.StorageError("failed to open keyword index", err).
			WithSuggestion("Delete the keyword index under the data directory and re-run dsh ingest")
	}
	repo, err := store.NewRepository(datasets, keyword, logger)
	if err != nil {
		_ = keyword.Close()
		return nil, err
	}
	a.repo = repo

	if withEmbedder {
		emb, err := embed.New(ctx, embedConfig(cfg), logger)
		if err != nil {
			return nil, err
		}
		a.embedder = emb
	}

	if err := a.loadVectors(ctx); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// embedConfig maps the embeddings section to an embedder configuration.
func embedConfig(cfg *config.Config) embed.Config {
	return embed.Config{
		Provider:   embed.ParseProvider(cfg.Embeddings.Provider),
		Model:      cfg.Embeddings.Model,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.APIKey(),
		Dimensions: cfg.Embeddings.Dimensions,
		CacheSize:  cfg.Embeddings.CacheSize,
	}
}

func (a *app) vectorPath() string {
	return filepath.Join(a.cfg.Storage.DataDir, vectorsName)
}

// loadVectors opens the vector store, loading the saved graph when it
// matches the embedder. A mismatch leaves the store empty and marks the
// saved vectors stale.
func (a *app) loadVectors(ctx context.Context) error {
	dims := 0
	if a.embedder != nil {
		dims = a.embedder.Dimensions()
	}

	saved, err := store.ReadHNSWStoreDimensions(a.vectorPath())
	if err != nil {
		a.logger.Warn("vector metadata unreadable, starting empty", slog.String("error", err.Error()))
		saved = 0
	}
	if dims == 0 {
		dims = saved
	}

	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		return err
	}
	a.vectors = vectors

	if saved == 0 {
		return nil
	}
	if saved != dims {
		a.staleVectors = true
		a.logger.Warn("stored vectors have different dimensions",
			slog.Int("stored", saved),
			slog.Int("embedder", dims))
		return nil
	}

	if a.embedder != nil {
		model, err := a.repo.Datasets().GetState(ctx, stateEmbeddingModel)
		if err != nil {
			return err
		}
		if model != "" && model != a.embedder.ModelName() {
			a.staleVectors = true
			a.logger.Warn("stored vectors were produced by another model",
				slog.String("stored", model),
				slog.String("embedder", a.embedder.ModelName()))
			return nil
		}
	}

	if err := vectors.Load(a.vectorPath()); err != nil {
		a.logger.Warn("vector store unreadable, starting empty", slog.String("error", err.Error()))
		vectors.Reset(dims)
	}
	return nil
}

// resetVectors empties the vector store for the current embedder.
func (a *app) resetVectors() {
	dims := 0
	if a.embedder != nil {
		dims = a.embedder.Dimensions()
	}
	a.vectors.Reset(dims)
	a.staleVectors = false
}

// saveVectors persists the vector store and records the embedding model.
func (a *app) saveVectors(ctx context.Context) error {
	if a.vectors == nil || a.embedder == nil || a.vectors.Count() == 0 {
		return nil
	}
	if err := a.vectors.Save(a.vectorPath()); err != nil {
		return dsherrors.StorageError("failed to save vector store", err).
			WithDetail("path", a.vectorPath())
	}
	return a.repo.Datasets().SetState(ctx, stateEmbeddingModel, a.embedder.ModelName())
}

// searchEngine builds the rank fusion engine. The semantic path is left
// out when there is no embedder or the stored vectors are stale.
func (a *app) searchEngine() (*search.Engine, error) {
	keyword, err := search.NewKeywordIndexRetriever(a.repo.Keyword())
	if err != nil {
		return nil, err
	}

	opts := []search.EngineOption{
		search.WithLogger(a.logger),
		search.WithConfig(search.Config{
			RRFConstant:             a.cfg.Search.RRFConstant,
			ShortQueryKeywordWeight: a.cfg.Search.ShortQueryKeywordWeight,
			ExactMatchBonus:         a.cfg.Search.ExactMatchBonus,
			CandidateLimit:          a.cfg.Search.CandidateLimit,
			SemanticTimeout:         a.cfg.Search.SemanticTimeout,
		}),
		search.WithBreaker(dsherrors.NewCircuitBreaker("semantic")),
	}

	switch {
	case a.embedder == nil:
		a.logger.Debug("semantic search disabled: no embedder")
	case a.staleVectors:
		a.logger.Warn("semantic search disabled: run dsh embed --rebuild")
	default:
		semantic, err := search.NewVectorRetriever(a.embedder, a.vectors)
		if err != nil {
			return nil, err
		}
		opts = append(opts, search.WithSemantic(semantic))
	}

	return search.NewEngine(keyword, a.repo, opts...)
}

// Close releases every store. Safe to call on a partially opened app.
func (a *app) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.embedder != nil {
		keep(a.embedder.Close())
	}
	if a.vectors != nil {
		keep(a.vectors.Close())
	}
	if a.repo != nil {
		keep(a.repo.Keyword().Close())
	}
	if a.db != nil {
		keep(a.db.Close())
	}
	if firstErr != nil {
		return fmt.Errorf("close stores: %w", firstErr)
	}
	return nil
}
