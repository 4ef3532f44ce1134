package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the user config at a temp dir and returns a
// data directory inside it.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("DSH_EMBEDDINGS_PROVIDER", "static")
	return filepath.Join(home, "data")
}

// runCLI executes the root command and returns its combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	root := NewRootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(&bytes.Buffer{})
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// When/Then: every command is registered
	for _, name := range []string{"ingest", "search", "status", "embed", "serve", "logs", "config", "version"} {
		found, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
}

func TestRootCmd_VersionFlag(t *testing.T) {
	isolate(t)

	// When: running with --version
	out, err := runCLI(t, "--version")

	// Then: the template is used
	require.NoError(t, err)
	assert.Contains(t, out, "dsh version")
}

func TestRootCmd_DataDirFlagOverridesConfig(t *testing.T) {
	dataDir := isolate(t)

	// When: a command runs with --data-dir
	_, err := runCLI(t, "--data-dir", dataDir, "status", "--json")

	// Then: the loaded config uses it
	require.NoError(t, err)
	require.NotNil(t, appConfig)
	assert.Equal(t, dataDir, appConfig.Storage.DataDir)
}

func TestSkipsSetup(t *testing.T) {
	root := NewRootCmd()

	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"version"}, true},
		{[]string{"config", "show"}, true},
		{[]string{"logs"}, true},
		{[]string{"status"}, false},
		{[]string{"search"}, false},
	}
	for _, tt := range tests {
		c, _, err := root.Find(tt.args)
		require.NoError(t, err)
		assert.Equal(t, tt.want, skipsSetup(c), tt.args)
	}
}
