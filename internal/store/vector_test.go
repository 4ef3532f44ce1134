package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWStore_AddAndSearch(t *testing.T) {
	// Given: an empty 4-dimensional store
	store, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	// And: vectors a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	err = store.Add(context.Background(), []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	})
	require.NoError(t, err)

	// When: searching for [1,0,0,0] with k=2
	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: a then c
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWStore_ReplaceOrphansOldNode(t *testing.T) {
	// Given: a store where "a" is re-added with a new vector
	store, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, store.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))

	// Then: counts reflect one live "a" and one orphan
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, HNSWStats{ValidIDs: 2, GraphNodes: 3, Orphans: 1}, store.Stats())

	// And: searching k=2 still returns two live ids
	results, err := store.Search(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{results[0].ID, results[1].ID})
}

func TestHNSWStore_Delete(t *testing.T) {
	store, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	require.NoError(t, store.Delete(ctx, []string{"a"}))

	assert.False(t, store.Contains("a"))
	assert.True(t, store.Contains("b"))
	assert.Equal(t, []string{"b"}, store.AllIDs())
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	store, err := NewHNSWStore(DefaultVectorStoreConfig(3))
	require.NoError(t, err)

	err = store.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})

	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)
}

func TestHNSWStore_DimensionsFromFirstVector(t *testing.T) {
	store, err := NewHNSWStore(VectorStoreConfig{})
	require.NoError(t, err)

	require.NoError(t, store.Add(context.Background(), []string{"a"}, [][]float32{{1, 2, 3}}))

	assert.Equal(t, 3, store.Dimensions())
}

func TestHNSWStore_SaveLoad(t *testing.T) {
	// Given: a saved store
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	store, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, store.Save(path))

	dims, err := ReadHNSWStoreDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 2, dims)

	// When: loading into a fresh store
	loaded, err := NewHNSWStore(VectorStoreConfig{})
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))

	// Then: contents and search survive
	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestReadHNSWStoreDimensions_Missing(t *testing.T) {
	dims, err := ReadHNSWStoreDimensions(filepath.Join(t.TempDir(), "none.hnsw"))
	require.NoError(t, err)
	assert.Zero(t, dims)
}

func TestHNSWStore_EmptyAndClosed(t *testing.T) {
	store, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)

	results, err := store.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, store.Close())
	_, err = store.Search(context.Background(), []float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, store.Count())
}

func TestHNSWStore_Reset(t *testing.T) {
	store, err := NewHNSWStore(DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}))

	store.Reset(3)

	assert.Zero(t, store.Count())
	assert.Equal(t, 3, store.Dimensions())
}

func TestNewHNSWStore_RejectsUnknownMetric(t *testing.T) {
	_, err := NewHNSWStore(VectorStoreConfig{Metric: "dot"})
	assert.Error(t, err)
}
