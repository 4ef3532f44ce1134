package ui

import (
	"context"
	"log/slog"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

// Log reports stage transitions as structured log events. Intermediate
// stages are logged at debug level, terminal ones at info or warn.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log reporter. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// OnRunStart implements ingest.Reporter.
func (l *Log) OnRunStart(total int) error {
	l.logger.Info("ingest run started", slog.Int("records", total))
	return nil
}

// OnStage implements ingest.Reporter.
func (l *Log) OnStage(ev ingest.StageEvent) error {
	level := slog.LevelDebug
	switch ev.Stage {
	case ingest.StageCompleted, ingest.StageSkipped:
		level = slog.LevelInfo
	case ingest.StageFailed:
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("id", ev.ID),
		slog.String("stage", ev.Stage.String()),
		slog.Int("index", ev.Index),
		slog.Int("total", ev.Total),
	}
	if ev.Partition != "" {
		attrs = append(attrs, slog.String("partition", ev.Partition))
	}
	if ev.Err != "" {
		attrs = append(attrs, slog.String("error", ev.Err))
	}
	l.logger.LogAttrs(context.Background(), level, "record stage", attrs...)
	return nil
}

// OnRunEnd implements ingest.Reporter.
func (l *Log) OnRunEnd(res *ingest.Result) error {
	if res == nil {
		return nil
	}
	l.logger.Info("ingest run finished",
		slog.Int("succeeded", len(res.Succeeded)),
		slog.Int("embedded", res.Embedded()),
		slog.Int("failed", len(res.Failed)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("pending", len(res.Pending)),
		slog.Float64("success_rate", res.SuccessRate()),
		slog.Duration("duration", res.Duration()))
	return nil
}

var _ ingest.Reporter = (*Log)(nil)
