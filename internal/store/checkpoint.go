package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// CheckpointBackend names a checkpoint store implementation.
type CheckpointBackend string

const (
	// CheckpointBackendFile stores one JSON file per partition (default).
	CheckpointBackendFile CheckpointBackend = "file"

	// CheckpointBackendBadger stores partitions in an embedded Badger DB.
	CheckpointBackendBadger CheckpointBackend = "badger"
)

var partitionPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func validatePartition(name string) error {
	if !partitionPattern.MatchString(name) {
		return dsherrors.ValidationError(fmt.Sprintf("invalid checkpoint partition %q", name), nil)
	}
	return nil
}

// FileCheckpoints opens file-backed checkpoint partitions in one directory.
type FileCheckpoints struct {
	dir string
}

// NewFileCheckpoints returns a factory for partitions under dir.
func NewFileCheckpoints(dir string) *FileCheckpoints {
	return &FileCheckpoints{dir: dir}
}

// Open locks and opens one partition. It fails if another process holds
// the partition.
func (f *FileCheckpoints) Open(partition string) (*FileCheckpoint, error) {
	if err := validatePartition(partition); err != nil {
		return nil, err
	}

	lock := NewFileLock(filepath.Join(f.dir, partition+".lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to lock checkpoint", err).
			WithDetail("partition", partition)
	}
	if !acquired {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "checkpoint partition is in use by another process", nil).
			WithDetail("partition", partition).
			WithSuggestion("wait for the other ingest to finish")
	}

	return &FileCheckpoint{
		partition: partition,
		path:      filepath.Join(f.dir, partition+".json"),
		lock:      lock,
		now:       time.Now,
	}, nil
}

// Partitions lists the partitions that have a checkpoint file, sorted.
func (f *FileCheckpoints) Partitions() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), ".json")
		if validatePartition(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Clear deletes every partition file in the directory.
func (f *FileCheckpoints) Clear() error {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*.json"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove checkpoint %s: %w", m, err)
		}
	}
	return nil
}

// FileCheckpoint is one partition's checkpoint, rewritten atomically on
// every append. The holder owns the partition lock until Close.
type FileCheckpoint struct {
	partition string
	path      string
	lock      *FileLock
	now       func() time.Time

	mu     sync.Mutex
	state  *Checkpoint
	closed bool
}

// Load reads the partition. A missing file is an empty checkpoint.
func (c *FileCheckpoint) Load(ctx context.Context) (*Checkpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	state, err := c.read()
	if err != nil {
		return nil, err
	}
	c.state = state
	return cloneCheckpoint(state), nil
}

func (c *FileCheckpoint) read() (*Checkpoint, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return &Checkpoint{Partition: c.partition}, nil
	}
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to read checkpoint", err).
			WithDetail("path", c.path)
	}

	var state Checkpoint
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "checkpoint file is corrupt", err).
			WithDetail("path", c.path)
	}
	state.Partition = c.partition
	return &state, nil
}

// Append records id as done and persists the partition.
func (c *FileCheckpoint) Append(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state == nil {
		state, err := c.read()
		if err != nil {
			// An unreadable checkpoint is replaced rather than blocking
			// progress from being recorded.
			state = &Checkpoint{Partition: c.partition}
		}
		c.state = state
	}

	c.state.Completed = append(c.state.Completed, id)
	c.state.LastIndex = len(c.state.Completed)
	c.state.UpdatedAt = c.now().UTC()
	return c.write(c.state)
}

func (c *FileCheckpoint) write(state *Checkpoint) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return dsherrors.InternalError("failed to encode checkpoint", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to create checkpoint directory", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to write checkpoint", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to replace checkpoint", err)
	}
	return nil
}

// Close releases the partition lock.
func (c *FileCheckpoint) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.lock.Unlock()
}

func cloneCheckpoint(c *Checkpoint) *Checkpoint {
	out := *c
	out.Completed = append([]string(nil), c.Completed...)
	return &out
}
