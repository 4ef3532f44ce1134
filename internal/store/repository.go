package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// Repository keeps the dataset table and the keyword index in step.
type Repository struct {
	datasets *SQLiteDatasets
	keyword  KeywordIndex
	logger   *slog.Logger
	now      func() time.Time
}

// NewRepository combines a dataset table and a keyword index.
func NewRepository(datasets *SQLiteDatasets, keyword KeywordIndex, logger *slog.Logger) (*Repository, error) {
	if datasets == nil || keyword == nil {
		return nil, fmt.Errorf("repository: %w", dsherrors.ErrNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{datasets: datasets, keyword: keyword, logger: logger, now: time.Now}, nil
}

// Save validates ds, upserts it and (re)indexes its text. Invalid
// records are rejected with a permanent validation error.
func (r *Repository) Save(ctx context.Context, ds *dataset.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if ds.IngestedAt.IsZero() {
		ds.IngestedAt = r.now().UTC()
	}

	if err := r.datasets.Save(ctx, ds); err != nil {
		return err
	}
	if err := r.keyword.Index(ctx, []*KeywordDocument{KeywordDocumentFor(ds)}); err != nil {
		return dsherrors.StorageError("failed to index dataset", err).WithDetail("id", ds.Identifier)
	}

	r.logger.Debug("dataset_saved",
		slog.String("id", ds.Identifier),
		slog.Int("keywords", len(ds.Keywords)))
	return nil
}

// Get returns one dataset.
func (r *Repository) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	return r.datasets.Get(ctx, id)
}

// GetMany returns the datasets that exist among ids.
func (r *Repository) GetMany(ctx context.Context, ids []string) (map[string]*dataset.Dataset, error) {
	return r.datasets.GetMany(ctx, ids)
}

// Delete removes datasets from the table and the keyword index.
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	if err := r.datasets.Delete(ctx, ids); err != nil {
		return err
	}
	return r.keyword.Delete(ctx, ids)
}

// Datasets exposes the dataset table.
func (r *Repository) Datasets() *SQLiteDatasets { return r.datasets }

// Keyword exposes the keyword index.
func (r *Repository) Keyword() KeywordIndex { return r.keyword }

// KeywordDocumentFor renders a dataset for keyword indexing.
func KeywordDocumentFor(ds *dataset.Dataset) *KeywordDocument {
	body := make([]string, 0, 2)
	if ds.Abstract != "" {
		body = append(body, ds.Abstract)
	}
	if ds.Lineage != "" {
		body = append(body, ds.Lineage)
	}
	return &KeywordDocument{
		ID:       ds.Identifier,
		Title:    ds.Title,
		Content:  strings.Join(body, "\n\n"),
		Keywords: append(append([]string{}, ds.Keywords...), ds.TopicCategories...),
	}
}
