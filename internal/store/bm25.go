package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	// TextTokenizerName is the registered Bleve tokenizer for metadata prose.
	TextTokenizerName = "dsh_tokenizer"

	// TextStopFilterName is the registered stop word filter.
	TextStopFilterName = "dsh_stop"

	// TextAnalyzerName is the custom analyzer combining the two.
	TextAnalyzerName = "dsh_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(TextTokenizerName, textTokenizerConstructor)
	_ = registry.RegisterTokenFilter(TextStopFilterName, textStopFilterConstructor)
}

// BleveKeywordIndex wraps Bleve v2 for BM25 keyword search.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config KeywordConfig
	closed bool
}

// bleveDocument is the document structure for Bleve indexing.
type bleveDocument struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Keywords string `json:"keywords"`
}

// validateIndexIntegrity checks a Bleve index directory before opening.
// Returns nil if the index is absent or looks intact.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports whether a Bleve open error means the index
// must be rebuilt.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveKeywordIndex opens or creates a Bleve index at path.
// An empty path creates an in-memory index. A corrupted index is cleared
// and recreated; the caller must re-ingest to repopulate it.
func NewBleveKeywordIndex(path string, config KeywordConfig) (*BleveKeywordIndex, error) {
	if config.TitleBoost <= 0 {
		config.TitleBoost = 2.0
	}
	if config.KeywordBoost <= 0 {
		config.KeywordBoost = 1.5
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveKeywordIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TextAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": TextTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			TextStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = TextAnalyzerName
	return indexMapping, nil
}

// Index adds or replaces documents.
func (b *BleveKeywordIndex) Index(ctx context.Context, docs []*KeywordDocument) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		bd := bleveDocument{
			Title:    doc.Title,
			Content:  doc.Content,
			Keywords: strings.Join(doc.Keywords, " "),
		}
		if err := batch.Index(doc.ID, bd); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search returns documents matching any query term, scored by BM25 with
// title and keyword boosts.
func (b *BleveKeywordIndex) Search(ctx context.Context, queryStr string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(queryStr) == "" || limit <= 0 {
		return []*KeywordResult{}, nil
	}

	title := bleve.NewMatchQuery(queryStr)
	title.SetField("title")
	title.SetBoost(b.config.TitleBoost)

	content := bleve.NewMatchQuery(queryStr)
	content.SetField("content")

	keywords := bleve.NewMatchQuery(queryStr)
	keywords.SetField("keywords")
	keywords.SetBoost(b.config.KeywordBoost)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(title, content, keywords))
	req.Size = limit
	req.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes documents from the index.
func (b *BleveKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// AllIDs returns all document IDs in the index.
func (b *BleveKeywordIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	docCount, _ := b.index.DocCount()
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns index statistics.
func (b *BleveKeywordIndex) Stats() *IndexStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &IndexStats{}
	}
	docCount, _ := b.index.DocCount()
	return &IndexStats{DocumentCount: int(docCount)}
}

// Close closes the index. It is idempotent.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			terms[term] = struct{}{}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	sort.Strings(result)
	return result
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

func textTokenizerConstructor(config map[string]any, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveTextTokenizer{}, nil
}

// bleveTextTokenizer adapts Tokenize to analysis.Tokenizer.
type bleveTextTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *bleveTextTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lowerText := strings.ToLower(text)
	tokens := Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(lowerText[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

func textStopFilterConstructor(config map[string]any, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveStopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type bleveStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(token.Term))]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
