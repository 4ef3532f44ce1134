package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/parse"
)

type testRig struct {
	fetcher  *fakeFetcher
	parser   *fakeParser
	store    *fakeStore
	embedder *fakeEmbedder
	vectors  *fakeVectors
	reporter *recordingReporter
	gate     *countingGate
}

func newRig() *testRig {
	return &testRig{
		fetcher:  newFakeFetcher(),
		parser:   &fakeParser{bad: map[string]int{}},
		store:    newFakeStore(),
		embedder: &fakeEmbedder{fail: map[string]bool{}},
		vectors:  newFakeVectors(),
		reporter: &recordingReporter{},
		gate:     &countingGate{},
	}
}

func (r *testRig) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithRetrier(StageFetching, fastRetrier(3)),
		WithRetrier(StageParsing, fastRetrier(3)),
		WithRetrier(StageStoring, fastRetrier(3)),
		WithRetrier(StageEmbedding, fastRetrier(2)),
	}
	o, err := NewOrchestrator(Dependencies{
		Fetcher:  r.fetcher,
		Parser:   r.parser,
		Store:    r.store,
		Embedder: r.embedder,
		Vectors:  r.vectors,
		Gate:     r.gate,
		Reporter: r.reporter,
	}, append(base, opts...)...)
	require.NoError(t, err)
	return o
}

// ============================================================================
// Per-record outcomes
// ============================================================================

func TestRun_PermanentFailureDoesNotStopRun(t *testing.T) {
	// Given: five records where the third fails permanently
	rig := newRig()
	rig.fetcher.fail("C", &dsherrors.HTTPError{Op: "fetch", StatusCode: 404})
	o := rig.orchestrator(t)

	// When: running
	res := o.Run(context.Background(), []string{"A", "B", "C", "D", "E"}, nil)

	// Then: four succeed and one fails after exactly one attempt
	assert.Equal(t, []string{"A", "B", "D", "E"}, succeededIDs(res))
	require.Len(t, res.Failed, 1)
	failed := res.Failed[0]
	assert.Equal(t, "C", failed.ID)
	assert.Equal(t, StageFetching, failed.Stage)
	assert.Equal(t, "permanent", failed.Kind)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, 1, rig.fetcher.calls["C"])
	assert.False(t, failed.FirstAttempt.IsZero())
	assert.InDelta(t, 0.8, res.SuccessRate(), 0.0001)

	// And: the reporter observed all five records
	assert.Equal(t, 5, rig.reporter.started)
	assert.Len(t, rig.reporter.terminal(), 5)
	assert.Same(t, res, rig.reporter.ended)
}

func TestRun_TransientFailureIsRetried(t *testing.T) {
	// Given: a fetch that fails twice with 503 then succeeds
	rig := newRig()
	unavailable := &dsherrors.HTTPError{Op: "fetch", StatusCode: 503}
	rig.fetcher.fail("A", unavailable, unavailable)
	o := rig.orchestrator(t)

	// When: running
	res := o.Run(context.Background(), []string{"A"}, nil)

	// Then: the record succeeds on the third attempt, each gated
	assert.Equal(t, []string{"A"}, succeededIDs(res))
	assert.Equal(t, 3, rig.fetcher.calls["A"])
	assert.Equal(t, 3, rig.gate.waits)
}

func TestRun_TransientExhaustion(t *testing.T) {
	rig := newRig()
	timeout := dsherrors.Transient(errors.New("read timeout"))
	rig.fetcher.fail("A", timeout, timeout, timeout)
	o := rig.orchestrator(t)

	res := o.Run(context.Background(), []string{"A"}, nil)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "transient", res.Failed[0].Kind)
	assert.Equal(t, 3, res.Failed[0].Attempts)
	assert.Contains(t, res.Failed[0].Message, "read timeout")
}

func TestRun_ParseFailureIsNotRetriedByDefault(t *testing.T) {
	// Given: a document that fails to parse once
	rig := newRig()
	rig.parser.bad["A"] = 1
	o := rig.orchestrator(t)

	// When: running with the default policy
	res := o.Run(context.Background(), []string{"A"}, nil)

	// Then: it fails at parsing after one attempt
	require.Len(t, res.Failed, 1)
	assert.Equal(t, StageParsing, res.Failed[0].Stage)
	assert.Equal(t, 1, res.Failed[0].Attempts)
	assert.Equal(t, "permanent", res.Failed[0].Kind)
}

func TestRun_ParseRetryPolicy(t *testing.T) {
	// Given: a parse failure marked transient and a retrying policy
	rig := newRig()
	o := rig.orchestrator(t, WithPolicy(Policy{RetryParse: true}))
	calls := 0
	o.parser = parserFunc(func(format parse.Format, content []byte) error {
		calls++
		if calls == 1 {
			return dsherrors.Transient(errors.New("truncated document"))
		}
		return nil
	}, rig.parser)

	// When: running
	res := o.Run(context.Background(), []string{"A"}, nil)

	// Then: the second attempt succeeds
	assert.Equal(t, []string{"A"}, succeededIDs(res))
	assert.Equal(t, 2, calls)
}

func TestRun_ValidationFailureAtStore(t *testing.T) {
	// Given: a parser producing a record without a title
	rig := newRig()
	o := rig.orchestrator(t)
	o.parser = untitledParser{}

	// When: running
	res := o.Run(context.Background(), []string{"A"}, nil)

	// Then: the store rejects it permanently
	require.Len(t, res.Failed, 1)
	assert.Equal(t, StageStoring, res.Failed[0].Stage)
	assert.Equal(t, 1, res.Failed[0].Attempts)
}

// ============================================================================
// Embedding
// ============================================================================

func TestRun_EmbedFailureIsNotFatal(t *testing.T) {
	// Given: an embedder that rejects B
	rig := newRig()
	rig.embedder.fail["B"] = true
	o := rig.orchestrator(t)

	// When: running
	res := o.Run(context.Background(), []string{"A", "B"}, nil)

	// Then: both complete but only A is embedded
	require.Len(t, res.Succeeded, 2)
	assert.True(t, res.Succeeded[0].Embedded)
	assert.False(t, res.Succeeded[1].Embedded)
	assert.Equal(t, 1, res.Embedded())
	assert.Empty(t, res.Failed)
	assert.True(t, rig.vectors.Contains("A"))
	assert.False(t, rig.vectors.Contains("B"))
	assert.Contains(t, rig.store.saved, "B")
}

func TestRun_EmbedFatalPolicy(t *testing.T) {
	rig := newRig()
	rig.embedder.fail["B"] = true
	o := rig.orchestrator(t, WithPolicy(Policy{EmbedFatal: true}))

	res := o.Run(context.Background(), []string{"A", "B"}, nil)

	require.Len(t, res.Failed, 1)
	assert.Equal(t, "B", res.Failed[0].ID)
	assert.Equal(t, StageEmbedding, res.Failed[0].Stage)
}

func TestRun_WithoutEmbedder(t *testing.T) {
	rig := newRig()
	o, err := NewOrchestrator(Dependencies{Fetcher: rig.fetcher, Parser: rig.parser, Store: rig.store})
	require.NoError(t, err)

	res := o.Run(context.Background(), []string{"A"}, nil)

	require.Len(t, res.Succeeded, 1)
	assert.False(t, res.Succeeded[0].Embedded)
}

// ============================================================================
// Checkpoints
// ============================================================================

func TestRun_SkipsCheckpointedRecords(t *testing.T) {
	// Given: a checkpoint holding A and B
	rig := newRig()
	ckpt := &memCheckpoint{completed: []string{"A", "B"}}
	o := rig.orchestrator(t)

	// When: running A, B, C
	res := o.Run(context.Background(), []string{"A", "B", "C"}, ckpt)

	// Then: only C is processed
	assert.Equal(t, []string{"C"}, rig.fetcher.fetched())
	assert.Equal(t, []string{"A", "B"}, res.Skipped)
	assert.Equal(t, []string{"C"}, succeededIDs(res))
	assert.Equal(t, []string{"A", "B", "C"}, ckpt.completed)
	assert.Equal(t, StageSkipped, rig.reporter.terminal()["A"])
}

func TestRun_FailedRecordsAreCheckpointed(t *testing.T) {
	rig := newRig()
	rig.fetcher.fail("A", dsherrors.Permanent(errors.New("gone")))
	ckpt := &memCheckpoint{}
	o := rig.orchestrator(t)

	_ = o.Run(context.Background(), []string{"A", "B"}, ckpt)

	assert.Equal(t, []string{"A", "B"}, ckpt.completed)
}

func TestRun_UnreadableCheckpointStartsFresh(t *testing.T) {
	rig := newRig()
	ckpt := &memCheckpoint{loadErr: dsherrors.New(dsherrors.ErrCodeCheckpoint, "corrupt", nil)}
	o := rig.orchestrator(t)

	res := o.Run(context.Background(), []string{"A"}, ckpt)

	assert.Equal(t, []string{"A"}, succeededIDs(res))
}

func TestRun_DuplicateIDsProcessedOnce(t *testing.T) {
	rig := newRig()
	o := rig.orchestrator(t)

	res := o.Run(context.Background(), []string{"A", "A"}, nil)

	assert.Equal(t, []string{"A"}, succeededIDs(res))
	assert.Equal(t, []string{"A"}, res.Skipped)
	assert.Equal(t, 1, rig.fetcher.calls["A"])
}

// ============================================================================
// Cancellation and reporters
// ============================================================================

func TestRun_CancellationLeavesRemainingPending(t *testing.T) {
	// Given: a run cancelled while B is being fetched
	rig := newRig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig.fetcher.hook = func(id string) error {
		if id == "B" {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	ckpt := &memCheckpoint{}
	o := rig.orchestrator(t)

	// When: running A, B, C
	res := o.Run(ctx, []string{"A", "B", "C"}, ckpt)

	// Then: A completed, B and C are pending and not checkpointed
	assert.Equal(t, []string{"A"}, succeededIDs(res))
	assert.Equal(t, []string{"B", "C"}, res.Pending)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"A"}, ckpt.completed)
	assert.Equal(t, 3, res.Total())
}

func TestRun_ReporterPanicAndErrorsAreContained(t *testing.T) {
	// Given: a reporter that errors on every event and panics on completion
	rig := newRig()
	rig.reporter.errOnAll = true
	rig.reporter.panicOn = StageCompleted
	o := rig.orchestrator(t)

	// When: running
	var res *Result
	require.NotPanics(t, func() {
		res = o.Run(context.Background(), []string{"A", "B"}, nil)
	})

	// Then: ingestion is unaffected
	assert.Equal(t, []string{"A", "B"}, succeededIDs(res))
}

func TestRun_StageEventsInOrder(t *testing.T) {
	rig := newRig()
	o := rig.orchestrator(t)

	_ = o.Run(context.Background(), []string{"A"}, nil)

	var stages []Stage
	for _, ev := range rig.reporter.events {
		assert.Equal(t, 1, ev.Index)
		assert.Equal(t, 1, ev.Total)
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []Stage{StageFetching, StageParsing, StageStoring, StageEmbedding, StageCompleted}, stages)
}

// ============================================================================
// Construction and types
// ============================================================================

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	rig := newRig()
	tests := []struct {
		name string
		deps Dependencies
	}{
		{"no fetcher", Dependencies{Parser: rig.parser, Store: rig.store}},
		{"no parser", Dependencies{Fetcher: rig.fetcher, Store: rig.store}},
		{"no store", Dependencies{Fetcher: rig.fetcher, Parser: rig.parser}},
		{"embedder without vectors", Dependencies{Fetcher: rig.fetcher, Parser: rig.parser, Store: rig.store, Embedder: rig.embedder}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(tt.deps)
			assert.ErrorIs(t, err, dsherrors.ErrNilDependency)
		})
	}
}

func TestNewOrchestrator_Options(t *testing.T) {
	rig := newRig()
	o, err := NewOrchestrator(Dependencies{Fetcher: rig.fetcher, Parser: rig.parser, Store: rig.store},
		WithFormat(parse.FormatGemini), WithRetrier(StageFetching, nil))
	require.NoError(t, err)

	assert.Equal(t, parse.FormatGemini, o.Format())
	assert.NotNil(t, o.retriers[StageFetching])
}

func TestStage_Next(t *testing.T) {
	s := StagePending
	var path []string
	for !s.IsTerminal() {
		path = append(path, s.String())
		s = s.Next()
	}
	path = append(path, s.String())

	assert.Equal(t, []string{"pending", "fetching", "parsing", "storing", "embedding", "completed"}, path)
	assert.Equal(t, StageFailed, StageFailed.Next())
	assert.Equal(t, "SKIP", StageSkipped.Icon())
}

func TestResult_SuccessRateAndMerge(t *testing.T) {
	assert.Zero(t, (&Result{}).SuccessRate())

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Result{Succeeded: []Record{{ID: "A"}}, StartedAt: t0.Add(time.Second), EndedAt: t0.Add(3 * time.Second)}
	b := &Result{Failed: []FailedRecord{{ID: "B"}}, Pending: []string{"C"}, StartedAt: t0, EndedAt: t0.Add(2 * time.Second)}

	merged := MergeResults(a, nil, b)

	assert.Equal(t, []string{"A"}, succeededIDs(merged))
	assert.Equal(t, "B", merged.Failed[0].ID)
	assert.Equal(t, []string{"C"}, merged.Pending)
	assert.Equal(t, t0, merged.StartedAt)
	assert.Equal(t, t0.Add(3*time.Second), merged.EndedAt)
	assert.InDelta(t, 0.5, merged.SuccessRate(), 0.0001)
	assert.Equal(t, 3, merged.Total())
}

// parserFunc runs check before delegating to next.
func parserFunc(check func(parse.Format, []byte) error, next Parser) Parser {
	return &checkingParser{check: check, next: next}
}

type checkingParser struct {
	check func(parse.Format, []byte) error
	next  Parser
}

func (p *checkingParser) Parse(format parse.Format, content []byte) (*dataset.Dataset, error) {
	if err := p.check(format, content); err != nil {
		return nil, err
	}
	return p.next.Parse(format, content)
}

type untitledParser struct{}

func (untitledParser) Parse(parse.Format, []byte) (*dataset.Dataset, error) {
	return &dataset.Dataset{Identifier: "A"}, nil
}
