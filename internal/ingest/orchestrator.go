package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/parse"
)

// Dependencies contains the collaborators of an Orchestrator.
type Dependencies struct {
	// Fetcher downloads catalogue documents (required).
	Fetcher Fetcher

	// Parser converts documents into datasets (required).
	Parser Parser

	// Store persists datasets (required).
	Store Store

	// Embedder and Vectors enable the embedding stage. Set both or neither.
	Embedder Embedder
	Vectors  Vectors

	// Gate paces fetches. Shared by every partition of a sharded run.
	Gate Gate

	// Reporter observes stage transitions.
	Reporter Reporter

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetrier sets the retrier for one stage. Parsing uses its retrier
// only when Policy.RetryParse is set.
func WithRetrier(stage Stage, r *dsherrors.Retrier) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.retriers[stage] = r
		}
	}
}

// WithFormat selects the catalogue document format to fetch and parse.
func WithFormat(format parse.Format) Option {
	return func(o *Orchestrator) {
		o.format = format
	}
}

// WithPolicy sets the failure policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// withClock replaces time.Now for tests.
func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator runs records through fetch, parse, store and embed.
// A record's failure never stops the run.
type Orchestrator struct {
	fetcher  Fetcher
	parser   Parser
	store    Store
	embedder Embedder
	vectors  Vectors
	gate     Gate
	reporter Reporter
	logger   *slog.Logger

	retriers map[Stage]*dsherrors.Retrier
	once     *dsherrors.Retrier
	format   parse.Format
	policy   Policy
	now      func() time.Time
}

// storeRetryConfig retries local storage contention quickly.
func storeRetryConfig() dsherrors.RetryConfig {
	cfg := dsherrors.DefaultRetryConfig()
	cfg.BaseDelay = 100 * time.Millisecond
	cfg.MaxDelay = 2 * time.Second
	return cfg
}

// NewOrchestrator validates deps and applies options.
func NewOrchestrator(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required: %w", dsherrors.ErrNilDependency)
	}
	if deps.Parser == nil {
		return nil, fmt.Errorf("parser is required: %w", dsherrors.ErrNilDependency)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required: %w", dsherrors.ErrNilDependency)
	}
	if (deps.Embedder == nil) != (deps.Vectors == nil) {
		return nil, fmt.Errorf("embedder and vector store must be set together: %w", dsherrors.ErrNilDependency)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = NopReporter{}
	}

	o := &Orchestrator{
		fetcher:  deps.Fetcher,
		parser:   deps.Parser,
		store:    deps.Store,
		embedder: deps.Embedder,
		vectors:  deps.Vectors,
		gate:     deps.Gate,
		reporter: &guardedReporter{inner: reporter, logger: logger},
		logger:   logger,
		retriers: map[Stage]*dsherrors.Retrier{
			StageFetching:  dsherrors.MustRetrier(dsherrors.DefaultRetryConfig()),
			StageParsing:   dsherrors.MustRetrier(dsherrors.DefaultRetryConfig()),
			StageStoring:   dsherrors.MustRetrier(storeRetryConfig()),
			StageEmbedding: dsherrors.MustRetrier(dsherrors.DefaultRetryConfig()),
		},
		once:   dsherrors.MustRetrier(dsherrors.RetryConfig{MaxAttempts: 1}),
		format: parse.FormatJSON,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Format returns the document format the orchestrator fetches.
func (o *Orchestrator) Format() parse.Format {
	return o.format
}

// Run processes ids in order. Identifiers already in ckpt are skipped;
// every finished identifier is appended to it. ckpt may be nil.
func (o *Orchestrator) Run(ctx context.Context, ids []string, ckpt CheckpointStore) *Result {
	_ = o.reporter.OnRunStart(len(ids))
	res := o.runPartition(ctx, "", ids, ckpt, nil)
	_ = o.reporter.OnRunEnd(res)
	return res
}

// recordOutcome is the result of processing one identifier.
type recordOutcome struct {
	record  *Record
	failure *FailedRecord
	// pending is set when cancellation interrupted the record.
	pending bool
}

// runPartition processes ids in order. prior is a read-only skip set shared
// by concurrent partitions and may be nil.
func (o *Orchestrator) runPartition(ctx context.Context, partition string, ids []string, ckpt CheckpointStore, prior map[string]struct{}) *Result {
	res := &Result{StartedAt: o.now()}
	done := o.loadCheckpoint(ctx, partition, ckpt)

	logger := o.logger
	if partition != "" {
		logger = logger.With(slog.String("partition", partition))
	}
	logger.Info("ingest partition started",
		slog.Int("records", len(ids)),
		slog.Int("checkpointed", len(done)))

	for i, id := range ids {
		if ctx.Err() != nil {
			res.Pending = append(res.Pending, ids[i:]...)
			break
		}

		ev := StageEvent{ID: id, Index: i + 1, Total: len(ids), Partition: partition}

		_, seen := done[id]
		if _, ok := prior[id]; ok || seen {
			res.Skipped = append(res.Skipped, id)
			ev.Stage = StageSkipped
			_ = o.reporter.OnStage(ev)
			continue
		}

		out := o.process(ctx, ev, logger)
		switch {
		case out.pending:
			res.Pending = append(res.Pending, id)
			continue
		case out.failure != nil:
			res.Failed = append(res.Failed, *out.failure)
			ev.Stage = StageFailed
			ev.Err = out.failure.Message
		default:
			res.Succeeded = append(res.Succeeded, *out.record)
			ev.Stage = StageCompleted
		}
		_ = o.reporter.OnStage(ev)

		done[id] = struct{}{}
		o.appendCheckpoint(ctx, logger, ckpt, id)
	}

	res.EndedAt = o.now()
	logger.Info("ingest partition finished",
		slog.Int("succeeded", len(res.Succeeded)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("pending", len(res.Pending)),
		slog.Duration("duration", res.Duration()))
	return res
}

// process drives one identifier through every stage.
func (o *Orchestrator) process(ctx context.Context, ev StageEvent, logger *slog.Logger) recordOutcome {
	id := ev.ID
	emit := func(s Stage) {
		ev.Stage = s
		_ = o.reporter.OnStage(ev)
	}

	emit(StageFetching)
	content, out := dsherrors.Execute(ctx, o.retriers[StageFetching], func(ctx context.Context) ([]byte, error) {
		if o.gate != nil {
			if err := o.gate.Wait(ctx); err != nil {
				return nil, dsherrors.Permanent(err)
			}
		}
		return o.fetcher.Fetch(ctx, id, o.format)
	})
	if !out.Succeeded() {
		return o.fail(ctx, logger, id, StageFetching, out)
	}

	if ctx.Err() != nil {
		return recordOutcome{pending: true}
	}
	emit(StageParsing)
	parseRetrier := o.once
	if o.policy.RetryParse {
		parseRetrier = o.retriers[StageParsing]
	}
	ds, out := dsherrors.Execute(ctx, parseRetrier, func(context.Context) (*dataset.Dataset, error) {
		ds, err := o.parser.Parse(o.format, content)
		if err != nil && !o.policy.RetryParse {
			return nil, dsherrors.Permanent(err)
		}
		return ds, err
	})
	if !out.Succeeded() {
		return o.fail(ctx, logger, id, StageParsing, out)
	}

	if ctx.Err() != nil {
		return recordOutcome{pending: true}
	}
	emit(StageStoring)
	out = dsherrors.Retry(ctx, o.retriers[StageStoring], func(ctx context.Context) error {
		return o.store.Save(ctx, ds)
	})
	if !out.Succeeded() {
		return o.fail(ctx, logger, id, StageStoring, out)
	}

	if o.embedder == nil {
		return recordOutcome{record: &Record{ID: id}}
	}

	if ctx.Err() != nil {
		return recordOutcome{pending: true}
	}
	emit(StageEmbedding)
	text := ds.SearchText()
	out = dsherrors.Retry(ctx, o.retriers[StageEmbedding], func(ctx context.Context) error {
		vec, err := o.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		return o.vectors.Add(ctx, []string{id}, [][]float32{vec})
	})
	if !out.Succeeded() {
		if o.policy.EmbedFatal || ctx.Err() != nil {
			return o.fail(ctx, logger, id, StageEmbedding, out)
		}
		attrs := append([]slog.Attr{slog.String("id", id), slog.Int("attempts", out.Attempts)},
			dsherrors.LogAttrs(out.Err())...)
		logger.LogAttrs(ctx, slog.LevelWarn, "record stored without embedding", attrs...)
		return recordOutcome{record: &Record{ID: id}}
	}

	return recordOutcome{record: &Record{ID: id, Embedded: true}}
}

// fail converts a failed stage into a FailedRecord, or into a pending
// outcome when the failure was caused by cancellation of the run.
func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, id string, stage Stage, out dsherrors.Outcome) recordOutcome {
	if ctx.Err() != nil {
		logger.Debug("record interrupted", slog.String("id", id), slog.String("stage", stage.String()))
		return recordOutcome{pending: true}
	}

	err := out.Err()
	failure := &FailedRecord{
		ID:           id,
		Stage:        stage,
		Kind:         out.Kind.String(),
		Message:      err.Error(),
		Attempts:     out.Attempts,
		FirstAttempt: out.FirstAttempt,
		LastAttempt:  out.LastAttempt,
	}

	attrs := append([]slog.Attr{
		slog.String("id", id),
		slog.String("stage", stage.String()),
		slog.Int("attempts", out.Attempts),
	}, dsherrors.LogAttrs(err)...)
	logger.LogAttrs(ctx, slog.LevelWarn, "record failed", attrs...)

	return recordOutcome{failure: failure}
}

func (o *Orchestrator) loadCheckpoint(ctx context.Context, partition string, ckpt CheckpointStore) map[string]struct{} {
	if ckpt == nil {
		return map[string]struct{}{}
	}
	state, err := ckpt.Load(ctx)
	if err != nil {
		attrs := append([]slog.Attr{slog.String("partition", partition)}, dsherrors.LogAttrs(err)...)
		o.logger.LogAttrs(ctx, slog.LevelWarn, "checkpoint unreadable, starting fresh", attrs...)
		return map[string]struct{}{}
	}
	return state.Set()
}

// appendCheckpoint records a finished identifier. The append is not tied
// to ctx so a record that finished just before cancellation is kept.
func (o *Orchestrator) appendCheckpoint(ctx context.Context, logger *slog.Logger, ckpt CheckpointStore, id string) {
	if ckpt == nil {
		return
	}
	if err := ckpt.Append(context.WithoutCancel(ctx), id); err != nil {
		attrs := append([]slog.Attr{slog.String("id", id)}, dsherrors.LogAttrs(err)...)
		logger.LogAttrs(ctx, slog.LevelWarn, "checkpoint append failed", attrs...)
	}
}

// guardedReporter keeps reporter errors and panics away from the run.
type guardedReporter struct {
	inner  Reporter
	logger *slog.Logger
}

func (g *guardedReporter) call(event string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("reporter panicked",
				slog.String("event", event),
				slog.String("panic", fmt.Sprint(r)))
			err = nil
		}
	}()
	if err := fn(); err != nil {
		g.logger.Warn("reporter failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
	return nil
}

func (g *guardedReporter) OnRunStart(total int) error {
	return g.call("run_start", func() error { return g.inner.OnRunStart(total) })
}

func (g *guardedReporter) OnStage(ev StageEvent) error {
	return g.call("stage", func() error { return g.inner.OnStage(ev) })
}

func (g *guardedReporter) OnRunEnd(res *Result) error {
	return g.call("run_end", func() error { return g.inner.OnRunEnd(res) })
}
