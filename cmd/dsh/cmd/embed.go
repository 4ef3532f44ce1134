package cmd

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/output"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ui"
)

// embedOptions holds CLI flags for embed.
type embedOptions struct {
	rebuild bool
	workers int
	plain   bool
}

func newEmbedCmd() *cobra.Command {
	var opts embedOptions

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed stored datasets that have no vector",
		Long: `Backfill embeddings for stored datasets.

Datasets ingested with --no-embed, or whose embedding failed, have no
vector and are found by keyword search only. This command embeds them
on a worker pool and saves the vector store.

Use --rebuild after changing the embedding provider or model to drop
every vector and embed all datasets again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEmbed(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Drop all vectors and embed every dataset")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent embedding workers (default: half the CPUs)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of the progress display")

	return cmd
}

func runEmbed(ctx context.Context, cmd *cobra.Command, opts embedOptions) error {
	cfg := loadedConfig()
	logger := slog.Default()
	out := output.New(cmd.OutOrStdout(), noColorFlag)

	a, err := openApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if a.embedder == nil {
		return dsherrors.New(dsherrors.ErrCodeConfigInvalid, "embeddings are disabled", nil).
			WithSuggestion("Set embeddings.provider in .dsh.yaml or DSH_EMBEDDER")
	}

	lock := store.NewFileLock(filepath.Join(cfg.Storage.DataDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return dsherrors.StorageError("failed to lock data directory", err)
	}
	if !locked {
		return dsherrors.New(dsherrors.ErrCodeStorageUnavailable, "an ingest is running on this data directory", nil)
	}
	defer func() { _ = lock.Unlock() }()

	reset := opts.rebuild || a.staleVectors
	if reset {
		logger.Info("dropping stored vectors", slog.Bool("rebuild", opts.rebuild))
		a.resetVectors()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reporter := ui.New(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(noColorFlag),
		ui.WithTitle("dsh embed"),
		ui.WithInterrupt(cancel),
	), logger)

	backfill, err := ingest.NewBackfill(a.repo.Datasets(), a.embedder, a.vectors,
		ingest.WithWorkers(opts.workers),
		ingest.WithBackfillRetrier(dsherrors.MustRetrier(cfg.Pipeline.Retry.Embed.RetryConfig())),
		ingest.WithBackfillReporter(reporter),
		ingest.WithBackfillLogger(logger),
	)
	if err != nil {
		return err
	}

	missing, err := backfill.Missing(ctx)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		if reset {
			if err := a.saveVectors(ctx); err != nil {
				return err
			}
		}
		out.Success("Every stored dataset has a vector")
		return nil
	}

	res, err := backfill.Run(ctx, missing)
	if err != nil {
		return err
	}
	if res.Embedded() > 0 || reset {
		if err := a.saveVectors(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	out.Newline()
	out.Successf("Embedded %d of %d datasets", res.Embedded(), len(missing))
	if len(res.Failed) > 0 {
		out.Warningf("%d datasets failed to embed. Re-run dsh embed to retry", len(res.Failed))
	}
	return nil
}
