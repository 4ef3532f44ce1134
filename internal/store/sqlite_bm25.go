package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// SQLiteKeywordIndex implements KeywordIndex using SQLite FTS5.
// WAL mode lets the serve and ingest processes share one index file.
type SQLiteKeywordIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    KeywordConfig
	closed    bool
	stopWords map[string]struct{}
}

var _ KeywordIndex = (*SQLiteKeywordIndex)(nil)

// NewSQLiteKeywordIndex opens or creates an FTS5 index at path. An empty
// path creates an in-memory index. A corrupted file is removed first.
func NewSQLiteKeywordIndex(path string, config KeywordConfig) (*SQLiteKeywordIndex, error) {
	if config.TitleBoost <= 0 {
		config.TitleBoost = 2.0
	}
	if config.KeywordBoost <= 0 {
		config.KeywordBoost = 1.5
	}
	if config.MinTokenLength <= 0 {
		config.MinTokenLength = 2
	}

	if path != "" {
		if validErr := validateSQLiteIntegrity(path, "fts_datasets"); validErr != nil {
			if err := removeSQLite(path, validErr); err != nil {
				return nil, err
			}
		}
	}

	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	idx := &SQLiteKeywordIndex{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteKeywordIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- doc_id is stored but not searchable; text columns hold
	-- pre-tokenized, stop-word-filtered text.
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_datasets USING fts5(
		doc_id UNINDEXED,
		title,
		content,
		keywords,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteKeywordIndex) prepare(text string) string {
	tokens := FilterStopWords(tokenize(text, s.config.MinTokenLength), s.stopWords)
	return strings.Join(tokens, " ")
}

// Index adds or replaces documents.
func (s *SQLiteKeywordIndex) Index(ctx context.Context, docs []*KeywordDocument) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so delete first.
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_datasets WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_datasets(doc_id, title, content, keywords) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertStmt.Close()

	idStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ID statement: %w", err)
	}
	defer idStmt.Close()

	for _, doc := range docs {
		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		_, err := insertStmt.ExecContext(ctx, doc.ID,
			s.prepare(doc.Title),
			s.prepare(doc.Content),
			s.prepare(strings.Join(doc.Keywords, " ")))
		if err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if _, err := idStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to track document ID %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns documents matching any query term, best first.
func (s *SQLiteKeywordIndex) Search(ctx context.Context, queryStr string, limit int) ([]*KeywordResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(queryStr) == "" || limit <= 0 {
		return []*KeywordResult{}, nil
	}

	tokens := FilterStopWords(tokenize(queryStr, s.config.MinTokenLength), s.stopWords)
	if len(tokens) == 0 {
		return []*KeywordResult{}, nil
	}

	// Quoted terms joined with OR: any term matches, and quoting keeps
	// FTS5 operators in user input from being interpreted.
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	match := strings.Join(quoted, " OR ")

	// bm25() is negative, lower is better. Column weights follow the
	// declaration order: doc_id, title, content, keywords.
	query := fmt.Sprintf(`
		SELECT doc_id, bm25(fts_datasets, 0.0, %g, 1.0, %g) AS score
		FROM fts_datasets
		WHERE fts_datasets MATCH ?
		ORDER BY score, doc_id
		LIMIT ?
	`, s.config.TitleBoost, s.config.KeywordBoost)
	rows, err := s.db.QueryContext(ctx, query, match, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*KeywordResult{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []*KeywordResult
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &KeywordResult{
			DocID:        docID,
			Score:        -score,
			MatchedTerms: tokens,
		})
	}
	return results, rows.Err()
}

// Delete removes documents from the index.
func (s *SQLiteKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders, args := inClause(ids)
	if _, err := tx.ExecContext(ctx, "DELETE FROM fts_datasets WHERE doc_id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM doc_ids WHERE doc_id IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete from doc_ids: %w", err)
	}
	return tx.Commit()
}

// AllIDs returns all document IDs in the index.
func (s *SQLiteKeywordIndex) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.Query(`SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns index statistics.
func (s *SQLiteKeywordIndex) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &IndexStats{}
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count); err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: count}
}

// Close checkpoints the WAL and closes the database. It is idempotent.
func (s *SQLiteKeywordIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// inClause builds "?,?,?" and the matching argument list.
func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}
