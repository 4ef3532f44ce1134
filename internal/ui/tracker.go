package ui

import (
	"sync"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

// Tracker accumulates run progress from stage events.
// It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	total     int
	done      int
	succeeded int
	failed    int
	skipped   int
	current   string
	stage     ingest.Stage
	failures  []ingest.StageEvent
	startTime time.Time
	now       func() time.Time

	// ETA smoothing to prevent wild fluctuations
	lastETA time.Duration

	// Throughput sampling
	lastDone   int
	lastSample time.Time
	speed      float64
	avgSpeed   float64
	peakSpeed  float64
	samples    int
	sparkline  *Sparkline
}

// SpeedStats contains throughput metrics in records per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// TrackerStats is a snapshot of run progress.
type TrackerStats struct {
	Total     int
	Done      int
	Succeeded int
	Failed    int
	Skipped   int
	Progress  float64
	ETA       time.Duration
	Elapsed   time.Duration
	CurrentID string
	Stage     ingest.Stage
	Speed     SpeedStats
}

// NewTracker creates a tracker.
func NewTracker() *Tracker {
	return newTrackerWithClock(time.Now)
}

func newTrackerWithClock(now func() time.Time) *Tracker {
	t := now()
	return &Tracker{
		startTime:  t,
		lastSample: t,
		now:        now,
		sparkline:  NewSparkline(60),
	}
}

// Start resets the tracker for a run of total records.
func (p *Tracker) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.total = total
	p.done, p.succeeded, p.failed, p.skipped = 0, 0, 0, 0
	p.current = ""
	p.failures = nil
	p.startTime = now
	p.lastSample = now
	p.lastDone = 0
	p.lastETA = 0
	p.speed, p.avgSpeed, p.peakSpeed, p.samples = 0, 0, 0, 0
	p.sparkline.Clear()
}

// Observe applies one stage event.
func (p *Tracker) Observe(ev ingest.StageEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = ev.ID
	p.stage = ev.Stage
	if !ev.Stage.IsTerminal() {
		return
	}

	p.done++
	switch ev.Stage {
	case ingest.StageCompleted:
		p.succeeded++
	case ingest.StageFailed:
		p.failed++
		p.failures = append(p.failures, ev)
	case ingest.StageSkipped:
		p.skipped++
	}
	p.sample()
}

// sample updates throughput at most every 500ms (must be called with lock held).
func (p *Tracker) sample() {
	now := p.now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < 500*time.Millisecond {
		return
	}

	if delta := p.done - p.lastDone; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed = speed
		p.samples++
		if p.samples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}
		if speed > p.peakSpeed {
			p.peakSpeed = speed
		}
		p.sparkline.Add(speed)
	}
	p.lastDone = p.done
	p.lastSample = now
}

// Stats returns a snapshot.
func (p *Tracker) Stats() TrackerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.done)/float64(p.total), 1.0)
	}
	return TrackerStats{
		Total:     p.total,
		Done:      p.done,
		Succeeded: p.succeeded,
		Failed:    p.failed,
		Skipped:   p.skipped,
		Progress:  progress,
		ETA:       p.eta(),
		Elapsed:   p.now().Sub(p.startTime),
		CurrentID: p.current,
		Stage:     p.stage,
		Speed:     SpeedStats{Current: p.speed, Avg: p.avgSpeed, Peak: p.peakSpeed},
	}
}

// Failures returns the failed events seen so far.
func (p *Tracker) Failures() []ingest.StageEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ingest.StageEvent, len(p.failures))
	copy(out, p.failures)
	return out
}

// RenderSparkline returns the throughput sparkline at width.
func (p *Tracker) RenderSparkline(width int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sparkline.Render(width)
}

// etaSmoothingFactor is the weight of the newest raw estimate.
const etaSmoothingFactor = 0.3

// eta estimates remaining time with exponential smoothing (must be called with lock held).
func (p *Tracker) eta() time.Duration {
	if p.done == 0 || p.total == 0 || p.done >= p.total {
		return 0
	}

	elapsed := p.now().Sub(p.startTime)
	progress := float64(p.done) / float64(p.total)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
