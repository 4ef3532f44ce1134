package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process exclusive lock backed by gofrs/flock.
// It keeps two ingest processes from writing the same checkpoint.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock at path. The file is created on first lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Lock blocks until the lock is acquired.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock attempts the lock without blocking. It returns false if
// another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Calling it on an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this FileLock holds the lock.
func (l *FileLock) IsLocked() bool { return l.locked }
