package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore implements VectorStore on the pure Go coder/hnsw graph.
// Dataset identifiers map to uint64 graph keys.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// hnswMetadata is the gob-encoded sidecar holding the ID mappings.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates an empty vector store. A zero Dimensions is fixed
// by the first vector added.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.Metric != "cos" && cfg.Metric != "l2" {
		return nil, fmt.Errorf("unknown metric %q (valid: cos, l2)", cfg.Metric)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &HNSWStore{config: cfg}
	s.reset()
	return s, nil
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	if s.config.Metric == "l2" {
		graph.Distance = hnsw.EuclideanDistance
	} else {
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25
	return graph
}

func (s *HNSWStore) reset() {
	s.graph = s.newGraph()
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.nextKey = 0
}

// Reset drops every vector, keeping the configuration. Used before a
// full re-embed with a different model.
func (s *HNSWStore) Reset(dimensions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.Dimensions = dimensions
	s.reset()
}

// Dimensions returns the configured vector dimension (0 until known).
func (s *HNSWStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.Dimensions
}

// Add inserts vectors. An existing ID is replaced by orphaning its old
// node: coder/hnsw misbehaves when deleting the last node of a layer.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.config.Dimensions == 0 {
		s.config.Dimensions = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Search finds the k nearest live vectors to query.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	// Orphaned nodes can occupy result slots, so over-fetch.
	fetch := k
	if orphans := s.graph.Len() - len(s.idMap); orphans > 0 {
		fetch += orphans
	}
	nodes := s.graph.Search(q, fetch)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete removes vectors by ID using lazy deletion.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// AllIDs returns all live vector IDs, sorted.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether id has a live vector.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// HNSWStats reports live vectors against graph nodes.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats returns store statistics.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}
	graphNodes := s.graph.Len()
	return HNSWStats{
		ValidIDs:   len(s.idMap),
		GraphNodes: graphNodes,
		Orphans:    graphNodes - len(s.idMap),
	}
}

// Save writes the graph to path and the ID mappings to path+".meta",
// each through a temp file and rename.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpIndexPath := path + ".tmp"
	file, err := os.Create(tmpIndexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmpIndexPath, path); err != nil {
		_ = os.Remove(tmpIndexPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load replaces the store's contents with the graph saved at path.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	meta, err := readHNSWMetadata(path + ".meta")
	if err != nil {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	s.config = meta.Config
	graph := s.newGraph()
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.graph = graph
	s.idMap = meta.IDMap
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	s.nextKey = meta.NextKey
	return nil
}

func readHNSWMetadata(path string) (*hnswMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return &meta, nil
}

// Close releases the graph. It is idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

// ReadHNSWStoreDimensions reads the dimension recorded beside a saved
// store. Returns 0 when nothing has been saved yet.
func ReadHNSWStoreDimensions(vectorPath string) (int, error) {
	meta, err := readHNSWMetadata(vectorPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return meta.Config.Dimensions, nil
}

var _ VectorStore = (*HNSWStore)(nil)

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps a distance to a similarity in [0,1].
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
