package ui

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTracker_CountsTerminalEvents(t *testing.T) {
	// Given: a tracker for four records
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := newTrackerWithClock(clock.now)
	tr.Start(4)

	// When: observing a mix of stages
	tr.Observe(ingest.StageEvent{ID: "a", Stage: ingest.StageFetching})
	tr.Observe(ingest.StageEvent{ID: "a", Stage: ingest.StageCompleted})
	tr.Observe(ingest.StageEvent{ID: "b", Stage: ingest.StageFailed, Err: "gone"})
	tr.Observe(ingest.StageEvent{ID: "c", Stage: ingest.StageSkipped})

	// Then: only terminal events advance progress
	stats := tr.Stats()
	assert.Equal(t, 3, stats.Done)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	assert.InDelta(t, 0.75, stats.Progress, 0.0001)
	assert.Equal(t, "c", stats.CurrentID)

	failures := tr.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "gone", failures[0].Err)
}

func TestTracker_SpeedAndETA(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := newTrackerWithClock(clock.now)
	tr.Start(10)

	// Two records per second for two seconds
	for i := range 4 {
		clock.advance(500 * time.Millisecond)
		tr.Observe(ingest.StageEvent{ID: string(rune('a' + i)), Stage: ingest.StageCompleted})
	}

	stats := tr.Stats()
	assert.InDelta(t, 2.0, stats.Speed.Current, 0.01)
	assert.InDelta(t, 2.0, stats.Speed.Peak, 0.01)
	assert.Equal(t, 3*time.Second, stats.ETA)
	assert.Equal(t, 2*time.Second, stats.Elapsed)
}

func TestTracker_StartResets(t *testing.T) {
	tr := NewTracker()
	tr.Start(2)
	tr.Observe(ingest.StageEvent{ID: "a", Stage: ingest.StageFailed})

	tr.Start(5)

	stats := tr.Stats()
	assert.Zero(t, stats.Done)
	assert.Equal(t, 5, stats.Total)
	assert.Empty(t, tr.Failures())
	assert.Zero(t, stats.ETA)
}

func TestSparkline_Render(t *testing.T) {
	s := NewSparkline(4)

	assert.Equal(t, "    ", s.Render(0), "empty sparkline is blank")

	s.Add(1)
	s.Add(8)
	assert.Equal(t, "  ▁█", s.Render(4))

	// Overwrite the oldest samples
	for _, v := range []float64{2, 4, 6, 8} {
		s.Add(v)
	}
	out := s.Render(0)
	assert.Equal(t, 4, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "█"))
	assert.Equal(t, "▆█", s.Render(2))
	assert.Equal(t, 6, s.Count())

	s.Clear()
	assert.Zero(t, s.Count())
}
