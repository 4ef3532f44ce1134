package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ui"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/watcher"
)

func TestReadIDs(t *testing.T) {
	// Given: a list with comments, blanks, padding and a duplicate
	input := "abc\n\n# comment\n  def  \nabc\n\t\nghi\n"

	// When: reading identifiers
	ids, err := readIDs(strings.NewReader(input))

	// Then: only unique identifiers remain, in order
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def", "ghi"}, ids)
}

func TestReadIDSource_MissingFile(t *testing.T) {
	// When: the file does not exist
	_, err := readIDSource(filepath.Join(t.TempDir(), "nope.txt"), nil)

	// Then: an error names the problem
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open identifier file")
}

func TestNeedsRerun(t *testing.T) {
	tests := []struct {
		name  string
		batch []watcher.FileEvent
		want  bool
	}{
		{"modify", []watcher.FileEvent{{Operation: watcher.OpModify}}, true},
		{"create", []watcher.FileEvent{{Operation: watcher.OpCreate}}, true},
		{"delete only", []watcher.FileEvent{{Operation: watcher.OpDelete}}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsRerun(tt.batch))
		})
	}
}

func TestIngestCmd_WatchRejectsStdin(t *testing.T) {
	dataDir := isolate(t)

	// When: watching stdin
	_, err := runCLI(t, "--data-dir", dataDir, "ingest", "-", "--watch")

	// Then: the command refuses
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--watch")
}

// catalogueServer serves one CEH JSON record and 404 for anything else.
func catalogueServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/id/abc" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc","title":"Soil moisture UK","description":"Daily soil moisture","keywordsTheme":["soil","hydrology"]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func writeIDs(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestIngestCmd_EndToEnd(t *testing.T) {
	// Given: a catalogue with one record and an id list naming two
	dataDir := isolate(t)
	srv, requests := catalogueServer(t)
	t.Setenv("DSH_CATALOGUE_URL", srv.URL)
	ids := writeIDs(t, t.TempDir(), "# datasets", "abc", "", "missing")

	// When: ingesting
	out, err := runCLI(t, "--data-dir", dataDir, "ingest", ids, "--plain")

	// Then: one record succeeds, one fails once, and the run is saved
	require.NoError(t, err)
	assert.Contains(t, out, "Ingesting 2 records")
	assert.Contains(t, out, "Complete: 1 succeeded (1 embedded), 1 failed")
	assert.Contains(t, out, "Run #1 saved")
	assert.Contains(t, out, "1 records failed")
	assert.Equal(t, int32(2), requests.Load())
	assert.FileExists(t, filepath.Join(dataDir, vectorsName))

	// When: checking status
	out, err = runCLI(t, "--data-dir", dataDir, "status", "--json")
	require.NoError(t, err)

	// Then: the dataset, its vector and the failure are reported
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 1, info.Datasets)
	assert.Equal(t, 1, info.KeywordDocs)
	assert.Equal(t, 1, info.Vectors)
	require.NotNil(t, info.LastRun)
	assert.Equal(t, 1, info.LastRun.Succeeded)
	assert.Equal(t, 1, info.LastRun.Failed)
	require.Len(t, info.LastRun.Failures, 1)
	assert.Equal(t, "missing", info.LastRun.Failures[0].ID)
	assert.Equal(t, 1, info.LastRun.Failures[0].Attempts)

	// When: searching
	out, err = runCLI(t, "--data-dir", dataDir, "search", "soil", "--json")
	require.NoError(t, err)

	// Then: the stored dataset is found
	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Hits)
	assert.Equal(t, "abc", resp.Hits[0].ID)
	assert.Equal(t, "Soil moisture UK", resp.Hits[0].Title)
}

func TestIngestCmd_ResumeSkipsCheckpointed(t *testing.T) {
	// Given: a completed run
	dataDir := isolate(t)
	srv, requests := catalogueServer(t)
	t.Setenv("DSH_CATALOGUE_URL", srv.URL)
	ids := writeIDs(t, t.TempDir(), "abc", "missing")
	_, err := runCLI(t, "--data-dir", dataDir, "ingest", ids, "--plain")
	require.NoError(t, err)
	before := requests.Load()

	// When: re-running with --resume
	out, err := runCLI(t, "--data-dir", dataDir, "ingest", ids, "--plain", "--resume")

	// Then: nothing is fetched again
	require.NoError(t, err)
	assert.Contains(t, out, "2 skipped")
	assert.Equal(t, before, requests.Load())
}

func TestIngestCmd_ResumeWithDifferentShards(t *testing.T) {
	// Given: five identifiers ingested over two shards
	dataDir := isolate(t)
	srv, requests := catalogueServer(t)
	t.Setenv("DSH_CATALOGUE_URL", srv.URL)
	ids := writeIDs(t, t.TempDir(), "abc", "m1", "m2", "m3", "m4")
	_, err := runCLI(t, "--data-dir", dataDir, "ingest", ids, "--plain", "--shards", "2")
	require.NoError(t, err)
	before := requests.Load()

	// When: resuming with three shards
	out, err := runCLI(t, "--data-dir", dataDir, "ingest", ids, "--plain", "--shards", "3", "--resume")

	// Then: every identifier is skipped and nothing is fetched
	require.NoError(t, err)
	assert.Contains(t, out, "5 skipped")
	assert.Equal(t, before, requests.Load())
}

func TestIngestCmd_NoEmbed(t *testing.T) {
	// Given: a catalogue with one record
	dataDir := isolate(t)
	srv, _ := catalogueServer(t)
	t.Setenv("DSH_CATALOGUE_URL", srv.URL)
	ids := writeIDs(t, t.TempDir(), "abc")

	// When: ingesting without embeddings
	out, err := runCLI(t, "--data-dir", dataDir, "ingest", ids, "--plain", "--no-embed")

	// Then: the record is stored without a vector
	require.NoError(t, err)
	assert.Contains(t, out, "1 succeeded (0 embedded)")
	assert.NoFileExists(t, filepath.Join(dataDir, vectorsName))

	// When: backfilling
	out, err = runCLI(t, "--data-dir", dataDir, "embed", "--plain")

	// Then: the vector is created
	require.NoError(t, err)
	assert.Contains(t, out, "Embedded 1 of 1 datasets")
	assert.FileExists(t, filepath.Join(dataDir, vectorsName))

	// When: backfilling again
	out, err = runCLI(t, "--data-dir", dataDir, "embed", "--plain")

	// Then: nothing is missing
	require.NoError(t, err)
	assert.Contains(t, out, "Every stored dataset has a vector")
}

func TestIngestCmd_InvalidFormat(t *testing.T) {
	dataDir := isolate(t)
	ids := writeIDs(t, t.TempDir(), "abc")

	// When: an unknown format is requested
	_, err := runCLI(t, "--data-dir", dataDir, "ingest", ids, "--format", "csv")

	// Then: the command fails before fetching
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
