// Package watcher reports changes to a single file, such as the
// identifier list read by `dsh ingest --watch`.
//
// The file's parent directory is watched with fsnotify so that editors
// which save by writing a temporary file and renaming it over the
// original are still seen. Where fsnotify cannot be used the watcher
// falls back to polling the file's size and modification time.
package watcher

import (
	"log/slog"
	"time"
)

// Operation represents a change to the watched file.
type Operation int

const (
	// OpCreate indicates the file appeared.
	OpCreate Operation = iota
	// OpModify indicates the file's contents changed or it was replaced.
	OpModify
	// OpDelete indicates the file was removed or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents one observed change.
type FileEvent struct {
	// Path is the absolute path of the file.
	Path string

	// Operation is the kind of change.
	Operation Operation

	// Timestamp is when the change was detected.
	Timestamp time.Time
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the quiet period before coalesced events are emitted.
	// Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the stat interval in polling mode.
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize is the capacity of the Events channel in batches.
	// Default: 16
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool

	// Logger receives dropped-batch and fallback notices.
	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
