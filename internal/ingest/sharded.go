package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// NewGate returns a token-bucket gate allowing rps requests per second
// with the given burst. rps <= 0 disables pacing and returns nil.
func NewGate(rps float64, burst int) Gate {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// PartitionName returns the checkpoint partition name for index i.
func PartitionName(i int) string {
	return fmt.Sprintf("part-%03d", i)
}

// Partition splits ids into at most shards contiguous, disjoint,
// non-empty slices whose concatenation is ids.
func Partition(ids []string, shards int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if shards < 1 {
		shards = 1
	}
	if shards > len(ids) {
		shards = len(ids)
	}

	size := (len(ids) + shards - 1) / shards
	parts := make([][]string, 0, shards)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		parts = append(parts, ids[start:end])
	}
	return parts
}

// RunSharded runs ids as concurrent partitions, each processed in order
// with its own checkpoint, all sharing the orchestrator's Gate. Before
// dispatch every existing partition in ckpts is read into one skip set,
// so a resume with a different shard count or a grown id list does not
// redo finished identifiers. Repeated identifiers are dropped before
// partitioning and reported as skipped. ckpts may be nil to run without
// checkpoints. A partition whose checkpoint cannot be opened is not
// processed and its ids are returned as pending.
func (o *Orchestrator) RunSharded(ctx context.Context, ids []string, shards int, ckpts Checkpoints) *Result {
	_ = o.reporter.OnRunStart(len(ids))

	unique, repeats := dedupe(ids)
	prior := o.loadPrior(ctx, ckpts)

	parts := Partition(unique, shards)
	results := make([]*Result, len(parts))

	var g errgroup.Group
	for i, part := range parts {
		name := PartitionName(i)
		g.Go(func() error {
			results[i] = o.runShard(ctx, name, part, ckpts, prior)
			return nil
		})
	}
	_ = g.Wait()

	merged := MergeResults(results...)
	if merged.StartedAt.IsZero() {
		merged.StartedAt = o.now()
		merged.EndedAt = merged.StartedAt
	}
	merged.Skipped = append(merged.Skipped, repeats...)
	_ = o.reporter.OnRunEnd(merged)
	return merged
}

// dedupe keeps the first occurrence of each identifier and returns the
// later occurrences separately.
func dedupe(ids []string) (unique, repeats []string) {
	seen := make(map[string]struct{}, len(ids))
	unique = make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			repeats = append(repeats, id)
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique, repeats
}

// loadPrior unions every existing partition checkpoint. Partitions that
// cannot be listed, opened or read are logged and left out.
func (o *Orchestrator) loadPrior(ctx context.Context, ckpts Checkpoints) map[string]struct{} {
	prior := map[string]struct{}{}
	if ckpts == nil {
		return prior
	}

	names, err := ckpts.Partitions()
	if err != nil {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "cannot list checkpoint partitions", dsherrors.LogAttrs(err)...)
		return prior
	}
	for _, name := range names {
		ckpt, err := ckpts.Open(name)
		if err != nil {
			attrs := append([]slog.Attr{slog.String("partition", name)}, dsherrors.LogAttrs(err)...)
			o.logger.LogAttrs(ctx, slog.LevelWarn, "checkpoint partition unavailable", attrs...)
			continue
		}
		state, err := ckpt.Load(ctx)
		_ = ckpt.Close()
		if err != nil {
			attrs := append([]slog.Attr{slog.String("partition", name)}, dsherrors.LogAttrs(err)...)
			o.logger.LogAttrs(ctx, slog.LevelWarn, "checkpoint partition unreadable", attrs...)
			continue
		}
		for _, id := range state.Completed {
			prior[id] = struct{}{}
		}
	}
	return prior
}

func (o *Orchestrator) runShard(ctx context.Context, name string, ids []string, ckpts Checkpoints, prior map[string]struct{}) *Result {
	if ckpts == nil {
		return o.runPartition(ctx, name, ids, nil, prior)
	}

	ckpt, err := ckpts.Open(name)
	if err != nil {
		attrs := append([]slog.Attr{slog.String("partition", name)}, dsherrors.LogAttrs(err)...)
		o.logger.LogAttrs(ctx, slog.LevelError, "checkpoint unavailable, partition not run", attrs...)
		now := o.now()
		return &Result{Pending: append([]string(nil), ids...), StartedAt: now, EndedAt: now}
	}
	defer func() {
		if err := ckpt.Close(); err != nil {
			o.logger.Warn("checkpoint close failed",
				slog.String("partition", name),
				slog.String("error", err.Error()))
		}
	}()

	return o.runPartition(ctx, name, ids, ckpt, prior)
}
