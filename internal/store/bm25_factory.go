package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// KeywordBackend names a keyword index implementation.
type KeywordBackend string

const (
	// KeywordBackendBleve uses Bleve v2 (default). Single process only.
	KeywordBackendBleve KeywordBackend = "bleve"

	// KeywordBackendSQLite uses SQLite FTS5 in WAL mode, which allows a
	// running server and an ingest to share the index.
	KeywordBackendSQLite KeywordBackend = "sqlite"
)

// NewKeywordIndex creates a KeywordIndex for backend under dataDir.
// An empty dataDir creates an in-memory index.
func NewKeywordIndex(dataDir string, config KeywordConfig, backend string) (KeywordIndex, error) {
	var path string
	if dataDir != "" {
		path = KeywordIndexPath(dataDir, backend)
	}

	switch KeywordBackend(backend) {
	case KeywordBackendBleve, "":
		return NewBleveKeywordIndex(path, config)
	case KeywordBackendSQLite:
		return NewSQLiteKeywordIndex(path, config)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: bleve, sqlite)", backend)
	}
}

// DetectKeywordBackend reports which backend an existing index under
// dataDir uses, or "" when there is none.
func DetectKeywordBackend(dataDir string) KeywordBackend {
	if dirExists(KeywordIndexPath(dataDir, string(KeywordBackendBleve))) {
		return KeywordBackendBleve
	}
	if fileExists(KeywordIndexPath(dataDir, string(KeywordBackendSQLite))) {
		return KeywordBackendSQLite
	}
	return ""
}

// KeywordIndexPath returns the index file or directory for backend.
func KeywordIndexPath(dataDir string, backend string) string {
	base := filepath.Join(dataDir, "keyword")
	if KeywordBackend(backend) == KeywordBackendSQLite {
		return base + ".db"
	}
	return base + ".bleve"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
