package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

type memRuns struct {
	runs []store.RunRecord
}

func (m *memRuns) SaveRun(_ context.Context, run store.RunRecord) (int64, error) {
	m.runs = append(m.runs, run)
	return int64(len(m.runs)), nil
}

func sampleResult() *Result {
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &Result{
		Succeeded: []Record{{ID: "a", Embedded: true}, {ID: "b"}},
		Failed: []FailedRecord{{
			ID: "c", Stage: StageFetching, Kind: "transient", Message: "HTTP 503",
			Attempts: 3, FirstAttempt: t0, LastAttempt: t0.Add(3 * time.Second),
		}},
		Skipped:   []string{"d"},
		Pending:   []string{"e", "f"},
		StartedAt: t0,
		EndedAt:   t0.Add(time.Minute),
	}
}

func TestToRunRecord(t *testing.T) {
	res := sampleResult()

	run := ToRunRecord(res)

	assert.Equal(t, 2, run.Succeeded)
	assert.Equal(t, 1, run.Embedded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 2, run.Pending)
	assert.Equal(t, res.StartedAt, run.StartedAt)
	require.Len(t, run.Failures, 1)
	f := run.Failures[0]
	assert.Equal(t, "c", f.DatasetID)
	assert.Equal(t, "fetching", f.Stage)
	assert.Equal(t, "transient", f.Kind)
	assert.Equal(t, 3, f.Attempts)
	assert.Equal(t, res.Failed[0].LastAttempt, f.LastAttempt)
}

func TestResultSink(t *testing.T) {
	_, err := NewResultSink(nil)
	assert.ErrorIs(t, err, dsherrors.ErrNilDependency)

	runs := &memRuns{}
	sink, err := NewResultSink(runs)
	require.NoError(t, err)

	id, err := sink.SaveResult(context.Background(), sampleResult())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.Len(t, runs.runs, 1)

	_, err = sink.SaveResult(context.Background(), nil)
	assert.ErrorIs(t, err, dsherrors.ErrNilDependency)
}
