package cmd

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/embed"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ui"
)

// embedderCheckTimeout bounds the availability probe in status.
const embedderCheckTimeout = 3 * time.Second

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store counts and the last ingest run",
		Long: `Show the number of stored datasets, keyword documents and vectors,
the embedder in use, and the outcome of the last ingest run with each
failed record's stage, error kind and attempt count.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg := loadedConfig()
	a, err := openApp(ctx, cfg, slog.Default(), true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	info, err := collectStatus(ctx, a)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColorFlag)
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStatus gathers store counts, embedder state and the last run.
func collectStatus(ctx context.Context, a *app) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		DataDir:        a.cfg.Storage.DataDir,
		KeywordBackend: a.cfg.Storage.KeywordBackend,
		Vectors:        a.vectors.Count(),
		StorageSize:    dirSize(a.cfg.Storage.DataDir),
	}
	if info.KeywordBackend == "" {
		info.KeywordBackend = string(store.KeywordBackendBleve)
	}

	count, err := a.repo.Datasets().Count(ctx)
	if err != nil {
		return info, err
	}
	info.Datasets = count
	if stats := a.repo.Keyword().Stats(); stats != nil {
		info.KeywordDocs = stats.DocumentCount
	}

	embedInfo := embed.GetInfo(a.embedder)
	info.EmbedderProvider = string(embedInfo.Provider)
	info.EmbedderModel = embedInfo.Model
	info.EmbedderDimensions = embedInfo.Dimensions
	info.EmbedderStatus = embedderStatus(ctx, a)

	run, err := a.runs.LastRun(ctx)
	if err != nil {
		return info, err
	}
	info.LastRun = runSummary(run)
	return info, nil
}

func embedderStatus(ctx context.Context, a *app) string {
	if a.embedder == nil {
		return "disabled"
	}
	if a.staleVectors {
		return "stale"
	}
	ctx, cancel := context.WithTimeout(ctx, embedderCheckTimeout)
	defer cancel()
	if !a.embedder.Available(ctx) {
		return "offline"
	}
	return "ready"
}

// runSummary converts a stored run for display. A nil run stays nil.
func runSummary(run *store.RunRecord) *ui.RunSummary {
	if run == nil {
		return nil
	}
	summary := &ui.RunSummary{
		ID:        run.ID,
		StartedAt: run.StartedAt,
		EndedAt:   run.EndedAt,
		Succeeded: run.Succeeded,
		Embedded:  run.Embedded,
		Failed:    run.Failed,
		Skipped:   run.Skipped,
		Pending:   run.Pending,
	}
	for _, f := range run.Failures {
		summary.Failures = append(summary.Failures, ui.FailureSummary{
			ID:       f.DatasetID,
			Stage:    f.Stage,
			Kind:     f.Kind,
			Message:  f.Message,
			Attempts: f.Attempts,
		})
	}
	return summary
}

// dirSize sums the sizes of regular files under dir.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
