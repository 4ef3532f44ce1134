package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// DatasetSource lists and loads stored datasets.
type DatasetSource interface {
	ListIDs(ctx context.Context, cursor string, limit int) ([]string, error)
	GetMany(ctx context.Context, ids []string) (map[string]*dataset.Dataset, error)
}

// VectorIndex is a Vectors that can report membership.
type VectorIndex interface {
	Vectors
	Contains(id string) bool
}

// BackfillOption configures a Backfill.
type BackfillOption func(*Backfill)

// WithWorkers sets the worker pool size. Default is runtime.NumCPU() / 2, minimum 1.
func WithWorkers(n int) BackfillOption {
	return func(b *Backfill) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithBackfillRetrier sets the retrier for each embedding.
func WithBackfillRetrier(r *dsherrors.Retrier) BackfillOption {
	return func(b *Backfill) {
		if r != nil {
			b.retrier = r
		}
	}
}

// WithBackfillReporter sets the reporter for embedding progress.
func WithBackfillReporter(r Reporter) BackfillOption {
	return func(b *Backfill) {
		if r != nil {
			b.reporter = r
		}
	}
}

// WithBackfillLogger sets a custom logger.
func WithBackfillLogger(logger *slog.Logger) BackfillOption {
	return func(b *Backfill) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Backfill embeds stored datasets that have no vector.
type Backfill struct {
	source   DatasetSource
	embedder Embedder
	vectors  VectorIndex
	retrier  *dsherrors.Retrier
	reporter Reporter
	workers  int
	logger   *slog.Logger
}

// listPageSize is the page size used when scanning stored identifiers.
const listPageSize = 500

// NewBackfill creates a backfill over source.
func NewBackfill(source DatasetSource, embedder Embedder, vectors VectorIndex, opts ...BackfillOption) (*Backfill, error) {
	if source == nil || embedder == nil || vectors == nil {
		return nil, fmt.Errorf("backfill needs a dataset source, embedder and vector store: %w", dsherrors.ErrNilDependency)
	}
	b := &Backfill{
		source:   source,
		embedder: embedder,
		vectors:  vectors,
		retrier:  dsherrors.MustRetrier(dsherrors.DefaultRetryConfig()),
		reporter: NopReporter{},
		workers:  max(runtime.NumCPU()/2, 1),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.reporter = &guardedReporter{inner: b.reporter, logger: b.logger}
	return b, nil
}

// Missing returns stored identifiers without a vector, in lexical order.
func (b *Backfill) Missing(ctx context.Context) ([]string, error) {
	var missing []string
	cursor := ""
	for {
		ids, err := b.source.ListIDs(ctx, cursor, listPageSize)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !b.vectors.Contains(id) {
				missing = append(missing, id)
			}
		}
		if len(ids) < listPageSize {
			return missing, nil
		}
		cursor = ids[len(ids)-1]
	}
}

// Run embeds the given datasets on a worker pool. Identifiers not in the
// store are skipped. Cancellation leaves unsubmitted identifiers pending.
func (b *Backfill) Run(ctx context.Context, ids []string) (*Result, error) {
	res := &Result{StartedAt: time.Now()}
	_ = b.reporter.OnRunStart(len(ids))

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		index int
	)
	record := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}

	for start := 0; start < len(ids); start += listPageSize {
		if ctx.Err() != nil {
			record(func() { res.Pending = append(res.Pending, ids[start:]...) })
			break
		}
		end := min(start+listPageSize, len(ids))
		batch := ids[start:end]

		datasets, err := b.source.GetMany(ctx, batch)
		if err != nil {
			wg.Wait()
			return nil, err
		}

		for i, id := range batch {
			ds, ok := datasets[id]
			if !ok {
				record(func() { res.Skipped = append(res.Skipped, id) })
				continue
			}
			if ctx.Err() != nil {
				record(func() { res.Pending = append(res.Pending, batch[i:]...) })
				break
			}

			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				rec, failure := b.embedOne(ctx, ds)
				record(func() {
					index++
					ev := StageEvent{ID: id, Index: index, Total: len(ids)}
					switch {
					case failure != nil && ctx.Err() != nil:
						res.Pending = append(res.Pending, id)
						return
					case failure != nil:
						res.Failed = append(res.Failed, *failure)
						ev.Stage = StageFailed
						ev.Err = failure.Message
					default:
						res.Succeeded = append(res.Succeeded, *rec)
						ev.Stage = StageCompleted
					}
					_ = b.reporter.OnStage(ev)
				})
			})
			if submitErr != nil {
				wg.Done()
				record(func() {
					res.Failed = append(res.Failed, FailedRecord{
						ID: id, Stage: StageEmbedding, Kind: dsherrors.KindPermanent.String(),
						Message: submitErr.Error(),
					})
				})
			}
		}
	}

	wg.Wait()
	res.EndedAt = time.Now()
	_ = b.reporter.OnRunEnd(res)

	b.logger.Info("embedding backfill finished",
		slog.Int("embedded", len(res.Succeeded)),
		slog.Int("failed", len(res.Failed)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("pending", len(res.Pending)),
		slog.Duration("duration", res.Duration()))
	return res, nil
}

func (b *Backfill) embedOne(ctx context.Context, ds *dataset.Dataset) (*Record, *FailedRecord) {
	text := ds.SearchText()
	out := dsherrors.Retry(ctx, b.retrier, func(ctx context.Context) error {
		vec, err := b.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		return b.vectors.Add(ctx, []string{ds.Identifier}, [][]float32{vec})
	})
	if out.Succeeded() {
		return &Record{ID: ds.Identifier, Embedded: true}, nil
	}

	err := out.Err()
	attrs := append([]slog.Attr{slog.String("id", ds.Identifier)}, dsherrors.LogAttrs(err)...)
	b.logger.LogAttrs(ctx, slog.LevelWarn, "backfill embedding failed", attrs...)
	return nil, &FailedRecord{
		ID:           ds.Identifier,
		Stage:        StageEmbedding,
		Kind:         out.Kind.String(),
		Message:      err.Error(),
		Attempts:     out.Attempts,
		FirstAttempt: out.FirstAttempt,
		LastAttempt:  out.LastAttempt,
	}
}
