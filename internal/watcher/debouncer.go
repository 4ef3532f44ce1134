package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces bursts of events so one save triggers one run.
// Events for the same path within the window merge as follows:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - DELETE then CREATE becomes MODIFY
//   - otherwise the latest operation wins
type Debouncer struct {
	window time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEvent
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer{
		window:  window,
		logger:  logger,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 4),
	}
}

// Add records an event and restarts the quiet window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if p, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(p.firstOp, event)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			p.event = merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges next into a pending event whose burst started with
// first. keep is false when the two cancel out.
func coalesce(first Operation, next FileEvent) (merged FileEvent, keep bool) {
	switch {
	case first == OpCreate && next.Operation == OpModify:
		next.Operation = OpCreate
	case first == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case first == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
	}
	return next, true
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- batch:
	default:
		d.logger.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(batch)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
