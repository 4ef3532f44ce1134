package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings to cache.
// At 768 dimensions * 4 bytes * 1000 entries that is about 3MB.
const DefaultCacheSize = 1000

// Cached wraps an Embedder with an LRU cache. Repeated search queries and
// re-ingested records with unchanged text skip the provider call.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached creates a cached embedder wrapping inner.
func NewCached(inner Embedder, size int) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Cached{
		inner: inner,
		cache: cache,
	}
}

// cacheKey hashes text together with the model name, so switching models
// never returns a stale vector.
func (c *Cached) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(hash[:])
}

// Embed returns cached embedding if available, otherwise computes and caches.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, sending only the
// uncached ones to the inner embedder.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}

	return results, nil
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *Cached) ModelName() string {
	return c.inner.ModelName()
}

// Available checks if the embedder is ready (passthrough to inner).
func (c *Cached) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close releases resources and closes the inner embedder.
func (c *Cached) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying embedder.
func (c *Cached) Inner() Embedder {
	return c.inner
}
