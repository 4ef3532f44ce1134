package search

import (
	"context"
	"fmt"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/embed"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

// KeywordIndexRetriever retrieves from a BM25 keyword index.
type KeywordIndexRetriever struct {
	index store.KeywordIndex
}

// NewKeywordIndexRetriever wraps a keyword index.
func NewKeywordIndexRetriever(index store.KeywordIndex) (*KeywordIndexRetriever, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: keyword index is required", dsherrors.ErrNilDependency)
	}
	return &KeywordIndexRetriever{index: index}, nil
}

// Retrieve implements Retriever.
func (r *KeywordIndexRetriever) Retrieve(ctx context.Context, query string, limit int) ([]string, error) {
	results, err := r.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.DocID)
	}
	return ids, nil
}

// VectorRetriever embeds the query and searches the vector store.
type VectorRetriever struct {
	embedder embed.Embedder
	vectors  store.VectorStore
}

// NewVectorRetriever combines an embedder with a vector store.
func NewVectorRetriever(embedder embed.Embedder, vectors store.VectorStore) (*VectorRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", dsherrors.ErrNilDependency)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector store is required", dsherrors.ErrNilDependency)
	}
	return &VectorRetriever{embedder: embedder, vectors: vectors}, nil
}

// Retrieve implements Retriever. An empty vector store returns no ids
// without calling the embedder.
func (r *VectorRetriever) Retrieve(ctx context.Context, query string, limit int) ([]string, error) {
	if r.vectors.Count() == 0 {
		return []string{}, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := r.vectors.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.ID)
	}
	return ids, nil
}
