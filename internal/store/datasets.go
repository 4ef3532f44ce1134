package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// SQLiteDatasets persists dataset records in SQLite. The full record is
// stored as JSON beside the columns used for listing and status.
type SQLiteDatasets struct {
	db *sql.DB
}

// NewSQLiteDatasets creates the schema on db if needed.
func NewSQLiteDatasets(ctx context.Context, db *sql.DB) (*SQLiteDatasets, error) {
	if db == nil {
		return nil, fmt.Errorf("datasets: %w", dsherrors.ErrNilDependency)
	}
	s := &SQLiteDatasets{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, dsherrors.StorageError("failed to initialize dataset schema", err)
	}
	return s, nil
}

func (s *SQLiteDatasets) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS datasets (
		identifier    TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		organisation  TEXT,
		access_level  TEXT NOT NULL DEFAULT 'public',
		source_format TEXT,
		document      TEXT NOT NULL,
		raw_document  TEXT,
		ingested_at   TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_ingested ON datasets(ingested_at);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion)
	return err
}

// Save inserts or replaces a dataset. The record must already be valid.
func (s *SQLiteDatasets) Save(ctx context.Context, ds *dataset.Dataset) error {
	doc, err := json.Marshal(ds)
	if err != nil {
		return dsherrors.InternalError("failed to encode dataset", err)
	}

	now := time.Now().UTC()
	ingested := ds.IngestedAt
	if ingested.IsZero() {
		ingested = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (identifier, title, organisation, access_level, source_format,
			document, raw_document, ingested_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			title = excluded.title,
			organisation = excluded.organisation,
			access_level = excluded.access_level,
			source_format = excluded.source_format,
			document = excluded.document,
			raw_document = excluded.raw_document,
			updated_at = excluded.updated_at`,
		ds.Identifier, ds.Title, ds.Organisation(), string(ds.AccessLevel), ds.SourceFormat,
		string(doc), ds.RawDocument, ingested, now)
	if err != nil {
		return storageErr("save dataset", ds.Identifier, err)
	}
	return nil
}

// Get returns one dataset, or an error wrapping ErrNotFound.
func (s *SQLiteDatasets) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	var doc string
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT document, raw_document FROM datasets WHERE identifier = ?`, id).Scan(&doc, &raw)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get dataset", id, err)
	}
	ds, err := decodeDataset(doc)
	if err != nil {
		return nil, err
	}
	ds.RawDocument = raw.String
	return ds, nil
}

// GetMany returns the datasets that exist among ids, keyed by identifier.
// Raw documents are not loaded.
func (s *SQLiteDatasets) GetMany(ctx context.Context, ids []string) (map[string]*dataset.Dataset, error) {
	out := make(map[string]*dataset.Dataset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier, document FROM datasets WHERE identifier IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storageErr("get datasets", strings.Join(ids, ","), err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		ds, err := decodeDataset(doc)
		if err != nil {
			return nil, err
		}
		out[id] = ds
	}
	return out, rows.Err()
}

// ListIDs returns identifiers in lexical order, after cursor (exclusive)
// and at most limit of them. A limit <= 0 returns all.
func (s *SQLiteDatasets) ListIDs(ctx context.Context, cursor string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT identifier FROM datasets
		WHERE identifier > ?
		ORDER BY identifier
		LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, storageErr("list datasets", cursor, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan identifier: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored datasets.
func (s *SQLiteDatasets) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&n); err != nil {
		return 0, storageErr("count datasets", "", err)
	}
	return n, nil
}

// Delete removes datasets by identifier.
func (s *SQLiteDatasets) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE identifier IN (`+placeholders+`)`, args...); err != nil {
		return storageErr("delete datasets", "", err)
	}
	return nil
}

// GetState reads a runtime state value. Missing keys return "".
func (s *SQLiteDatasets) GetState(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetState writes a runtime state value.
func (s *SQLiteDatasets) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

func decodeDataset(doc string) (*dataset.Dataset, error) {
	var ds dataset.Dataset
	if err := json.Unmarshal([]byte(doc), &ds); err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCorruptIndex, "stored dataset is not valid JSON", err)
	}
	return &ds, nil
}

// storageErr wraps a database failure. Busy and locked databases are
// transient; everything else is not worth retrying.
func storageErr(op, id string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return dsherrors.StorageError(op+" failed", err).WithDetail("id", id)
	}
	return dsherrors.New(dsherrors.ErrCodeStorageWrite, op+" failed", err).WithDetail("id", id)
}
