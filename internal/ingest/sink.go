package ingest

import (
	"context"
	"fmt"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

// RunStore persists run summaries.
type RunStore interface {
	SaveRun(ctx context.Context, run store.RunRecord) (int64, error)
}

// ResultSink saves run results, including every failed record, for later
// inspection by `dsh status`.
type ResultSink struct {
	runs RunStore
}

// NewResultSink creates a sink writing to runs.
func NewResultSink(runs RunStore) (*ResultSink, error) {
	if runs == nil {
		return nil, fmt.Errorf("run store is required: %w", dsherrors.ErrNilDependency)
	}
	return &ResultSink{runs: runs}, nil
}

// SaveResult persists res and returns the run id.
func (s *ResultSink) SaveResult(ctx context.Context, res *Result) (int64, error) {
	if res == nil {
		return 0, fmt.Errorf("result is required: %w", dsherrors.ErrNilDependency)
	}
	return s.runs.SaveRun(ctx, ToRunRecord(res))
}

// ToRunRecord converts a Result into its persisted form.
func ToRunRecord(res *Result) store.RunRecord {
	run := store.RunRecord{
		StartedAt: res.StartedAt,
		EndedAt:   res.EndedAt,
		Succeeded: len(res.Succeeded),
		Embedded:  res.Embedded(),
		Failed:    len(res.Failed),
		Skipped:   len(res.Skipped),
		Pending:   len(res.Pending),
	}
	for _, f := range res.Failed {
		run.Failures = append(run.Failures, store.FailureRecord{
			DatasetID:    f.ID,
			Stage:        f.Stage.String(),
			Kind:         f.Kind,
			Message:      f.Message,
			Attempts:     f.Attempts,
			FirstAttempt: f.FirstAttempt,
			LastAttempt:  f.LastAttempt,
		})
	}
	return run
}
