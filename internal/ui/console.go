package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
)

// Console writes one plain line per stage transition (for CI/pipes).
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console reporter writing to out.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{out: out}
}

// OnRunStart implements ingest.Reporter.
func (c *Console) OnRunStart(total int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.out, "Ingesting %d records\n", total)
	return err
}

// OnStage implements ingest.Reporter.
// Format: [STAGE] index/total id, with the partition and error when set.
func (c *Console) OnStage(ev ingest.StageEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("[%s] %d/%d %s", ev.Stage.Icon(), ev.Index, ev.Total, ev.ID)
	if ev.Partition != "" {
		line += " (" + ev.Partition + ")"
	}
	if ev.Err != "" {
		line += ": " + ev.Err
	}
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// OnRunEnd implements ingest.Reporter.
func (c *Console) OnRunEnd(res *ingest.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res == nil {
		return nil
	}
	_, _ = fmt.Fprintf(c.out, "Complete: %d succeeded (%d embedded), %d failed, %d skipped",
		len(res.Succeeded), res.Embedded(), len(res.Failed), len(res.Skipped))
	if len(res.Pending) > 0 {
		_, _ = fmt.Fprintf(c.out, ", %d pending", len(res.Pending))
	}
	_, _ = fmt.Fprintf(c.out, " in %s (%.0f%% success)\n",
		res.Duration().Round(100*time.Millisecond), res.SuccessRate()*100)

	for _, f := range res.Failed {
		_, _ = fmt.Fprintf(c.out, "FAIL: %s [%s, %s, %d attempts]: %s\n",
			f.ID, f.Stage, f.Kind, f.Attempts, f.Message)
	}
	return nil
}

var _ ingest.Reporter = (*Console)(nil)
