package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

func TestRunModel_View(t *testing.T) {
	// Given: a model mid-run with one failure
	tr := NewTracker()
	tr.Start(4)
	tr.Observe(ingest.StageEvent{ID: "a", Stage: ingest.StageCompleted})
	tr.Observe(ingest.StageEvent{ID: "b", Stage: ingest.StageFailed, Err: "HTTP 404"})
	tr.Observe(ingest.StageEvent{ID: "c", Stage: ingest.StageEmbedding})
	m := newRunModel(tr, "dsh ingest")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: stages, counts, current id and failure are shown
	assert.Contains(t, view, "dsh ingest")
	for _, stage := range []string{"Fetch", "Parse", "Store", "Embed"} {
		assert.Contains(t, view, stage)
	}
	assert.Contains(t, view, "2 / 4 records")
	assert.Contains(t, view, "1 failed")
	assert.Contains(t, view, "✗ b: HTTP 404")
}

func TestRunModel_CompleteAndQuit(t *testing.T) {
	interrupted := false
	m := newRunModel(NewTracker(), "dsh ingest")
	m.styles = NoColorStyles()
	m.interrupt = func() { interrupted = true }

	_, cmd := m.Update(completeMsg{result: &ingest.Result{
		Succeeded: []ingest.Record{{ID: "a", Embedded: true}},
		Pending:   []string{"b"},
	}})
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Ingest complete")
	assert.Contains(t, view, "1 records not processed")

	q := newRunModel(NewTracker(), "")
	q.interrupt = m.interrupt
	_, cmd = q.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.NotNil(t, cmd)
	assert.True(t, interrupted)
	assert.Contains(t, q.View(), "Cancelling")
}

func TestFormatDurationAndTruncate(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
}
