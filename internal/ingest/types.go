// Package ingest drives catalogue records through fetch, parse, store and
// embed, recording a per-record outcome for every identifier.
package ingest

import (
	"context"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/parse"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

// Stage is a step in a record's life.
type Stage int

const (
	// StagePending means the record has not been dispatched.
	StagePending Stage = iota
	// StageFetching downloads the catalogue document.
	StageFetching
	// StageParsing converts the document into a Dataset.
	StageParsing
	// StageStoring persists and keyword-indexes the Dataset.
	StageStoring
	// StageEmbedding computes and stores the record's vector.
	StageEmbedding
	// StageCompleted is terminal success.
	StageCompleted
	// StageFailed is terminal failure.
	StageFailed
	// StageSkipped means a checkpoint already held the record.
	StageSkipped
)

// String returns the stage name used in logs and run history.
func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageFetching:
		return "fetching"
	case StageParsing:
		return "parsing"
	case StageStoring:
		return "storing"
	case StageEmbedding:
		return "embedding"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	case StageSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Icon returns the short stage label for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StagePending:
		return "WAIT"
	case StageFetching:
		return "FETCH"
	case StageParsing:
		return "PARSE"
	case StageStoring:
		return "STORE"
	case StageEmbedding:
		return "EMBED"
	case StageCompleted:
		return "DONE"
	case StageFailed:
		return "FAIL"
	case StageSkipped:
		return "SKIP"
	default:
		return "???"
	}
}

// Next returns the stage that follows s on the success path. Terminal
// stages return themselves.
func (s Stage) Next() Stage {
	switch s {
	case StagePending:
		return StageFetching
	case StageFetching:
		return StageParsing
	case StageParsing:
		return StageStoring
	case StageStoring:
		return StageEmbedding
	case StageEmbedding:
		return StageCompleted
	default:
		return s
	}
}

// IsTerminal reports whether no further transition follows s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageSkipped
}

// Record is a successfully ingested identifier.
type Record struct {
	ID string
	// Embedded is false when the record completed without a vector.
	Embedded bool
}

// FailedRecord describes why one identifier did not complete.
type FailedRecord struct {
	ID           string
	Stage        Stage
	Kind         string
	Message      string
	Attempts     int
	FirstAttempt time.Time
	LastAttempt  time.Time
}

// Result is the outcome of one run. Every input position lands in exactly
// one of Succeeded, Failed, Skipped or Pending: an identifier is processed
// at most once per run and its repeats are reported as skipped.
type Result struct {
	Succeeded []Record
	Failed    []FailedRecord
	Skipped   []string
	// Pending holds identifiers never finished because the run was cancelled.
	Pending   []string
	StartedAt time.Time
	EndedAt   time.Time
}

// SuccessRate is succeeded / (succeeded + failed), or 0 when neither.
func (r *Result) SuccessRate() float64 {
	n := len(r.Succeeded) + len(r.Failed)
	if n == 0 {
		return 0
	}
	return float64(len(r.Succeeded)) / float64(n)
}

// Total returns the number of identifiers the result accounts for.
func (r *Result) Total() int {
	return len(r.Succeeded) + len(r.Failed) + len(r.Skipped) + len(r.Pending)
}

// Embedded counts succeeded records that have a vector.
func (r *Result) Embedded() int {
	n := 0
	for _, rec := range r.Succeeded {
		if rec.Embedded {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// MergeResults concatenates partition results in the order given. The
// merged run starts at the earliest start and ends at the latest end.
func MergeResults(parts ...*Result) *Result {
	merged := &Result{}
	for _, p := range parts {
		if p == nil {
			continue
		}
		merged.Succeeded = append(merged.Succeeded, p.Succeeded...)
		merged.Failed = append(merged.Failed, p.Failed...)
		merged.Skipped = append(merged.Skipped, p.Skipped...)
		merged.Pending = append(merged.Pending, p.Pending...)
		if merged.StartedAt.IsZero() || (!p.StartedAt.IsZero() && p.StartedAt.Before(merged.StartedAt)) {
			merged.StartedAt = p.StartedAt
		}
		if p.EndedAt.After(merged.EndedAt) {
			merged.EndedAt = p.EndedAt
		}
	}
	return merged
}

// StageEvent is one stage transition of one record.
type StageEvent struct {
	ID        string
	Stage     Stage
	Index     int // 1-based position within the partition
	Total     int
	Partition string
	Err       string
}

// Reporter observes a run. Implementations must be safe for concurrent
// use when the run is sharded.
type Reporter interface {
	OnRunStart(total int) error
	OnStage(ev StageEvent) error
	OnRunEnd(res *Result) error
}

// NopReporter ignores every event.
type NopReporter struct{}

func (NopReporter) OnRunStart(int) error     { return nil }
func (NopReporter) OnStage(StageEvent) error { return nil }
func (NopReporter) OnRunEnd(*Result) error   { return nil }

// Policy sets which failures are retried or fatal.
type Policy struct {
	// RetryParse retries parse failures with the parsing retrier instead
	// of treating them as permanent.
	RetryParse bool
	// EmbedFatal fails the record when embedding fails instead of
	// completing it without a vector.
	EmbedFatal bool
}

// Fetcher downloads one catalogue document.
type Fetcher interface {
	Fetch(ctx context.Context, id string, format parse.Format) ([]byte, error)
}

// Parser converts a document into a Dataset.
type Parser interface {
	Parse(format parse.Format, content []byte) (*dataset.Dataset, error)
}

// Store persists a Dataset.
type Store interface {
	Save(ctx context.Context, ds *dataset.Dataset) error
}

// Embedder produces a vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Vectors stores vectors by identifier.
type Vectors interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
}

// Gate paces outbound requests. *rate.Limiter satisfies it.
type Gate interface {
	Wait(ctx context.Context) error
}

// CheckpointStore holds the identifiers a partition has finished.
type CheckpointStore interface {
	Load(ctx context.Context) (*store.Checkpoint, error)
	Append(ctx context.Context, id string) error
}

// PartitionCheckpoint is a CheckpointStore owned by one partition.
type PartitionCheckpoint interface {
	CheckpointStore
	Close() error
}

// Checkpoints opens partition checkpoints and lists the partitions that
// already hold progress, whatever shard count wrote them.
type Checkpoints interface {
	Open(partition string) (PartitionCheckpoint, error)
	Partitions() ([]string, error)
}
