package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string, opts Options) *FileWatcher {
	t.Helper()
	w, err := New(path, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return w
}

func nextBatch(t *testing.T, w *FileWatcher) []FileEvent {
	t.Helper()
	select {
	case batch, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return batch
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for file event")
		return nil
	}
}

func TestFileWatcher_Polling_DetectsModify(t *testing.T) {
	// Given: an existing id file watched by polling
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))
	w := startWatcher(t, path, Options{
		ForcePolling:   true,
		PollInterval:   20 * time.Millisecond,
		DebounceWindow: 30 * time.Millisecond,
	})
	assert.Equal(t, "polling", w.Mode())

	// When: the file grows
	require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o644))

	// Then: a modify is reported
	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
	assert.Equal(t, w.Path(), batch[0].Path)
}

func TestFileWatcher_Polling_DetectsCreate(t *testing.T) {
	// Given: a watched path that does not exist yet
	path := filepath.Join(t.TempDir(), "ids.txt")
	w := startWatcher(t, path, Options{
		ForcePolling:   true,
		PollInterval:   20 * time.Millisecond,
		DebounceWindow: 30 * time.Millisecond,
	})

	// When: the file is created
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	// Then: a create is reported
	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestFileWatcher_Fsnotify_IgnoresSiblings(t *testing.T) {
	// Given: an id file watched with fsnotify
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))
	w := startWatcher(t, path, Options{DebounceWindow: 30 * time.Millisecond})
	if w.Mode() != "fsnotify" {
		t.Skip("fsnotify not available")
	}

	// When: a sibling changes, then the id file is rewritten
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("b\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the id file is reported
	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.Equal(t, w.Path(), batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestFileWatcher_Fsnotify_RenameOverIsModify(t *testing.T) {
	// Given: an id file watched with fsnotify
	dir := t.TempDir()
	path := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))
	w := startWatcher(t, path, Options{DebounceWindow: 50 * time.Millisecond})
	if w.Mode() != "fsnotify" {
		t.Skip("fsnotify not available")
	}

	// When: an editor saves by renaming a temp file over it
	tmp := filepath.Join(dir, ".ids.txt.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("a\nb\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	// Then: the change is reported and the file still exists
	batch := nextBatch(t, w)
	require.Len(t, batch, 1)
	assert.NotEqual(t, OpDelete, batch[0].Operation)
}

func TestFileWatcher_Stop_ClosesChannels(t *testing.T) {
	// Given: a running watcher
	path := filepath.Join(t.TempDir(), "ids.txt")
	w, err := New(path, Options{ForcePolling: true, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	// When: stopped twice
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Then: Start returns and both channels close
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}
