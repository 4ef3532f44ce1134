package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusInfo describes the local catalogue store.
type StatusInfo struct {
	DataDir string `json:"data_dir"`

	Datasets       int    `json:"datasets"`
	KeywordDocs    int    `json:"keyword_docs"`
	KeywordBackend string `json:"keyword_backend"`
	Vectors        int    `json:"vectors"`
	StorageSize    int64  `json:"storage_size"`

	EmbedderProvider   string `json:"embedder_provider"`
	EmbedderModel      string `json:"embedder_model,omitempty"`
	EmbedderDimensions int    `json:"embedder_dimensions,omitempty"`
	EmbedderStatus     string `json:"embedder_status"` // "ready", "offline", "disabled", "stale"

	LastRun *RunSummary `json:"last_run,omitempty"`
}

// RunSummary is the persisted outcome of an ingest run.
type RunSummary struct {
	ID        int64            `json:"id"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at"`
	Succeeded int              `json:"succeeded"`
	Embedded  int              `json:"embedded"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Pending   int              `json:"pending"`
	Failures  []FailureSummary `json:"failures,omitempty"`
}

// FailureSummary is one failed record of a run.
type FailureSummary struct {
	ID       string `json:"id"`
	Stage    string `json:"stage"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// StatusRenderer displays store status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
		now:    time.Now,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Catalogue Status: "+info.DataDir))

	_, _ = fmt.Fprintf(r.out, "  Datasets:     %d\n", info.Datasets)
	_, _ = fmt.Fprintf(r.out, "  Keyword docs: %d (%s)\n", info.KeywordDocs, info.KeywordBackend)
	_, _ = fmt.Fprintf(r.out, "  Vectors:      %d\n", info.Vectors)
	if info.StorageSize > 0 {
		_, _ = fmt.Fprintf(r.out, "  Storage:      %s\n", FormatBytes(info.StorageSize))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Provider: %s\n", info.EmbedderProvider)
	_, _ = fmt.Fprintf(r.out, "    Status:   %s\n", r.renderStatus(info.EmbedderStatus))
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:    %s (%d dims)\n", info.EmbedderModel, info.EmbedderDimensions)
	}
	_, _ = fmt.Fprintln(r.out)

	run := info.LastRun
	if run == nil {
		_, _ = fmt.Fprintln(r.out, "  Last run: never")
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "  Last run #%d: %s (%s)\n", run.ID,
		r.formatTime(run.EndedAt), run.EndedAt.Sub(run.StartedAt).Round(time.Second))
	_, _ = fmt.Fprintf(r.out, "    %s, %d embedded, %s, %d skipped",
		r.styles.Success.Render(fmt.Sprintf("%d succeeded", run.Succeeded)),
		run.Embedded,
		r.failedStyle(run.Failed).Render(fmt.Sprintf("%d failed", run.Failed)),
		run.Skipped)
	if run.Pending > 0 {
		_, _ = fmt.Fprintf(r.out, ", %s", r.styles.Warning.Render(fmt.Sprintf("%d pending", run.Pending)))
	}
	_, _ = fmt.Fprintln(r.out)

	for _, f := range run.Failures {
		_, _ = fmt.Fprintf(r.out, "    %s %s [%s/%s, %d attempts]: %s\n",
			r.styles.Error.Render("✗"), f.ID, f.Stage, f.Kind, f.Attempts, f.Message)
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) failedStyle(n int) lipgloss.Style {
	if n > 0 {
		return r.styles.Error
	}
	return r.styles.Label
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline", "disabled", "stale":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
