package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
)

func TestSearchCmd_EmptyStore(t *testing.T) {
	// Given: nothing ingested
	dataDir := isolate(t)

	// When: searching
	out, err := runCLI(t, "--data-dir", dataDir, "search", "rainfall")

	// Then: the user is told nothing matched
	require.NoError(t, err)
	assert.Contains(t, out, `No datasets found for "rainfall"`)
}

func TestSearchCmd_JSONEmpty(t *testing.T) {
	dataDir := isolate(t)

	// When: searching with --json
	out, err := runCLI(t, "--data-dir", dataDir, "search", "rainfall", "--json")

	// Then: the response decodes with no hits
	require.NoError(t, err)
	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "rainfall", resp.Query)
	assert.Empty(t, resp.Hits)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	dataDir := isolate(t)

	// When: no query is given
	_, err := runCLI(t, "--data-dir", dataDir, "search")

	// Then: argument validation fails
	require.Error(t, err)
}
