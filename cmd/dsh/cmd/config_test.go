package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigCmd_Path(t *testing.T) {
	isolate(t)

	// When: printing the path
	out, err := runCLI(t, "config", "path")

	// Then: it lives under XDG_CONFIG_HOME
	require.NoError(t, err)
	want := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "dsh", "config.yaml")
	assert.Equal(t, want, strings.TrimSpace(out))
}

func TestConfigCmd_Init(t *testing.T) {
	isolate(t)
	path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "dsh", "config.yaml")

	// When: initialising
	out, err := runCLI(t, "config", "init")

	// Then: the defaults are written as YAML
	require.NoError(t, err)
	assert.Contains(t, out, "Created user configuration")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "catalogue")

	// When: initialising again without --force
	require.NoError(t, os.WriteFile(path, []byte("# edited\n"), 0o644))
	out, err = runCLI(t, "config", "init")

	// Then: the file is left alone
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# edited\n", string(data))

	// When: forcing
	_, err = runCLI(t, "config", "init", "--force")

	// Then: the defaults replace it
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, "# edited\n", string(data))
}

func TestConfigCmd_ShowDefaults(t *testing.T) {
	isolate(t)

	// When: showing the defaults
	out, err := runCLI(t, "config", "show", "--source", "defaults")

	// Then: the output is YAML with the default embedder
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "embeddings")
	assert.Contains(t, out, "static")
}

func TestConfigCmd_ShowInvalidSource(t *testing.T) {
	isolate(t)

	// When: an unknown source is requested
	_, err := runCLI(t, "config", "show", "--source", "project")

	// Then: the command fails
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid source")
}
