package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches one file for changes.
type FileWatcher struct {
	path      string
	opts      Options
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}
	stopOnce  sync.Once

	// last is the polling baseline.
	last fileState
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

// New prepares a watcher for path. The watch is active when New
// returns, so changes made before Start is called are not lost.
func New(path string, opts Options) (*FileWatcher, error) {
	opts = opts.WithDefaults()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}

	w := &FileWatcher{
		path:      abs,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.Logger),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fsw.Add(filepath.Dir(abs))
			if err == nil {
				w.fs = fsw
			} else {
				_ = fsw.Close()
			}
		}
		if err != nil {
			opts.Logger.Warn("fsnotify unavailable, falling back to polling",
				slog.String("path", abs),
				slog.String("error", err.Error()))
		}
	}
	if w.fs == nil {
		w.last = stat(abs)
	}
	return w, nil
}

// Start delivers events until ctx is done or Stop is called. It closes
// the Events and Errors channels before returning.
func (w *FileWatcher) Start(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.forward()
	}()

	var err error
	if w.fs != nil {
		err = w.listen(ctx)
	} else {
		err = w.poll(ctx)
	}

	w.debouncer.Stop()
	<-done
	close(w.events)
	close(w.errors)
	return err
}

// Stop ends Start. Safe to call multiple times.
func (w *FileWatcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	return nil
}

// Events returns debounced batches of changes.
func (w *FileWatcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watcher errors.
func (w *FileWatcher) Errors() <-chan error {
	return w.errors
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string {
	return w.path
}

// Mode reports "fsnotify" or "polling".
func (w *FileWatcher) Mode() string {
	if w.fs != nil {
		return "fsnotify"
	}
	return "polling"
}

func (w *FileWatcher) listen(ctx context.Context) error {
	defer func() { _ = w.fs.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *FileWatcher) handle(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
}

func (w *FileWatcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case <-ticker.C:
		}

		cur := stat(w.path)
		prev := w.last
		w.last = cur

		var op Operation
		switch {
		case !prev.exists && cur.exists:
			op = OpCreate
		case prev.exists && !cur.exists:
			op = OpDelete
		case cur.exists && (cur.size != prev.size || !cur.modTime.Equal(prev.modTime)):
			op = OpModify
		default:
			continue
		}
		w.debouncer.Add(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
	}
}

func (w *FileWatcher) forward() {
	for batch := range w.debouncer.Output() {
		select {
		case w.events <- batch:
		default:
			w.opts.Logger.Warn("watcher event buffer full, dropping batch",
				slog.Int("batch_size", len(batch)))
		}
	}
}

func (w *FileWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.opts.Logger.Warn("watcher error dropped", slog.String("error", err.Error()))
	}
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
}
