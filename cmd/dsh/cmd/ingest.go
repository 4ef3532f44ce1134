package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/catalogue"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/config"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ingest"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/output"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/parse"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/ui"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/watcher"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/pkg/version"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	shards  int
	resume  bool
	format  string
	watch   bool
	noEmbed bool
	plain   bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest [ids-file | -]",
		Short: "Fetch, parse, store and embed catalogue records",
		Long: `Ingest dataset metadata records from the catalogue.

Identifiers are read one per line from the given file, or from stdin
when the argument is "-" or omitted. Blank lines and lines starting
with # are ignored.

Each record is fetched, parsed, stored and embedded with retries.
Completed and failed identifiers are checkpointed per partition, so
--resume skips them after an interruption. The run and its failed
records are saved for 'dsh status'.`,
		Example: `  # Ingest a list of identifiers
  dsh ingest ids.txt

  # Four concurrent partitions sharing the rate limit
  dsh ingest ids.txt --shards 4

  # Continue an interrupted run
  dsh ingest ids.txt --resume

  # Re-run whenever the file changes
  dsh ingest ids.txt --watch

  # Read identifiers from a pipe
  cat ids.txt | dsh ingest -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := "-"
			if len(args) == 1 {
				source = args[0]
			}
			return runIngest(cmd.Context(), cmd, source, opts)
		},
	}

	cmd.Flags().IntVar(&opts.shards, "shards", 0, "Number of concurrent partitions (default: pipeline.shards)")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "Skip identifiers checkpointed by a previous run")
	cmd.Flags().StringVar(&opts.format, "format", "", "Document format: json, gemini (default: catalogue.format)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-run when the identifier file changes")
	cmd.Flags().BoolVar(&opts.noEmbed, "no-embed", false, "Skip the embedding stage")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of the progress display")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, source string, opts ingestOptions) error {
	if opts.watch && source == "-" {
		return dsherrors.New(dsherrors.ErrCodeInvalidInput, "--watch needs an identifier file, not stdin", nil).
			WithSuggestion("Pass the path of the identifier file")
	}

	cfg := loadedConfig()
	logger := slog.Default()
	out := output.New(cmd.OutOrStdout(), noColorFlag)

	ids, err := readIDSource(source, cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := openApp(ctx, cfg, logger, !opts.noEmbed)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	lock := store.NewFileLock(filepath.Join(cfg.Storage.DataDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return dsherrors.StorageError("failed to lock data directory", err)
	}
	if !locked {
		return dsherrors.New(dsherrors.ErrCodeStorageUnavailable, "another ingest is running on this data directory", nil).
			WithSuggestion("Wait for it to finish, or use a different --data-dir")
	}
	defer func() { _ = lock.Unlock() }()

	// The TUI reads q and ctrl+c itself, so it cancels the run directly.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := newPipeline(a, cmd.OutOrStdout(), opts, cancel)
	if err != nil {
		return err
	}
	defer p.Close()

	if !opts.resume {
		if err := p.clear(); err != nil {
			return err
		}
	}

	if err := p.run(ctx, out, ids); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}
	return watchIDFile(ctx, out, source, p, logger)
}

// pipeline is one configured orchestrator with its checkpoints and sink.
type pipeline struct {
	app    *app
	orch   *ingest.Orchestrator
	fetch  *catalogue.Client
	sink   *ingest.ResultSink
	shards int
	embeds bool

	ckpts   ingest.Checkpoints
	clearFn func() error
	closeFn func() error
}

func newPipeline(a *app, w io.Writer, opts ingestOptions, interrupt func()) (*pipeline, error) {
	cfg := a.cfg

	formatName := opts.format
	if formatName == "" {
		formatName = cfg.Catalogue.Format
	}
	format, err := parse.ParseFormat(formatName)
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeInvalidInput, err.Error(), err).
			WithSuggestion("Use --format json or --format gemini")
	}

	userAgent := cfg.Catalogue.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}
	client, err := catalogue.NewClient(catalogue.Config{
		BaseURL:   cfg.Catalogue.BaseURL,
		Timeout:   cfg.Catalogue.Timeout,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, err
	}

	shards := opts.shards
	if shards <= 0 {
		shards = cfg.Pipeline.Shards
	}

	// The TUI renders a single run, so watch mode uses plain output.
	reporter := ui.New(ui.NewConfig(w,
		ui.WithForcePlain(opts.plain || opts.watch),
		ui.WithNoColor(noColorFlag),
		ui.WithTitle(fmt.Sprintf("dsh ingest (%s)", format)),
		ui.WithInterrupt(interrupt),
	), a.logger)

	deps := ingest.Dependencies{
		Fetcher:  client,
		Parser:   parse.DefaultRegistry(),
		Store:    a.repo,
		Gate:     ingest.NewGate(cfg.Pipeline.RequestsPerSecond, cfg.Pipeline.Burst),
		Reporter: reporter,
		Logger:   a.logger,
	}
	embeds := !opts.noEmbed && a.embedder != nil
	if embeds {
		if a.staleVectors {
			a.logger.Warn("discarding vectors from a different embedder")
			a.resetVectors()
		}
		deps.Embedder = a.embedder
		deps.Vectors = a.vectors
	}

	retry := cfg.Pipeline.Retry
	orch, err := ingest.NewOrchestrator(deps,
		ingest.WithRetrier(ingest.StageFetching, dsherrors.MustRetrier(retry.Fetch.RetryConfig())),
		ingest.WithRetrier(ingest.StageParsing, dsherrors.MustRetrier(retry.Parse.RetryConfig())),
		ingest.WithRetrier(ingest.StageStoring, dsherrors.MustRetrier(retry.Store.RetryConfig())),
		ingest.WithRetrier(ingest.StageEmbedding, dsherrors.MustRetrier(retry.Embed.RetryConfig())),
		ingest.WithFormat(format),
		ingest.WithPolicy(ingest.Policy{
			RetryParse: cfg.Pipeline.RetryParse,
			EmbedFatal: cfg.Pipeline.EmbedFatal,
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	sink, err := ingest.NewResultSink(a.runs)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	p := &pipeline{app: a, orch: orch, fetch: client, sink: sink, shards: shards, embeds: embeds}
	if err := p.openCheckpoints(cfg); err != nil {
		_ = client.Close()
		return nil, err
	}
	return p, nil
}

// openCheckpoints selects the checkpoint backend.
func (p *pipeline) openCheckpoints(cfg *config.Config) error {
	dir := cfg.CheckpointDir()

	switch cfg.Pipeline.Checkpoint.Backend {
	case "badger":
		checkpoints, err := store.OpenBadgerCheckpoints(dir, p.app.logger)
		if err != nil {
			return err
		}
		p.ckpts = badgerCheckpointSet{checkpoints}
		p.clearFn = checkpoints.Clear
		p.closeFn = checkpoints.Close
	default:
		checkpoints := store.NewFileCheckpoints(dir)
		p.ckpts = fileCheckpointSet{checkpoints}
		p.clearFn = checkpoints.Clear
		p.closeFn = func() error { return nil }
	}
	return nil
}

// fileCheckpointSet and badgerCheckpointSet return store handles as
// ingest.PartitionCheckpoint. A failed Open must yield a nil interface.
type fileCheckpointSet struct{ *store.FileCheckpoints }

func (s fileCheckpointSet) Open(partition string) (ingest.PartitionCheckpoint, error) {
	c, err := s.FileCheckpoints.Open(partition)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type badgerCheckpointSet struct{ *store.BadgerCheckpoints }

func (s badgerCheckpointSet) Open(partition string) (ingest.PartitionCheckpoint, error) {
	c, err := s.BadgerCheckpoints.Open(partition)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *pipeline) clear() error {
	if err := p.clearFn(); err != nil {
		return dsherrors.StorageError("failed to clear checkpoints", err)
	}
	return nil
}

// run ingests ids, saves vectors and the run record, and prints where to
// look next.
func (p *pipeline) run(ctx context.Context, out *output.Writer, ids []string) error {
	if len(ids) == 0 {
		out.Warning("No identifiers to ingest")
		return nil
	}

	res := p.orch.RunSharded(ctx, ids, p.shards, p.ckpts)

	if p.embeds && res.Embedded() > 0 {
		if err := p.app.saveVectors(ctx); err != nil {
			return err
		}
	}

	// The run record is saved even when ctx was cancelled.
	runID, err := p.sink.SaveResult(context.WithoutCancel(ctx), res)
	if err != nil {
		p.app.logger.LogAttrs(ctx, slog.LevelError, "failed to save run record", dsherrors.LogAttrs(err)...)
		out.Warningf("Run record not saved: %v", err)
	}

	out.Newline()
	if runID > 0 {
		out.Successf("Run #%d saved", runID)
	}
	if len(res.Failed) > 0 {
		out.Warningf("%d records failed. Run 'dsh status' for details", len(res.Failed))
	}
	if len(res.Pending) > 0 {
		out.Warningf("%d records pending. Re-run with --resume to continue", len(res.Pending))
	}
	return nil
}

func (p *pipeline) Close() {
	if err := p.closeFn(); err != nil {
		p.app.logger.Warn("checkpoint store close failed", slog.String("error", err.Error()))
	}
	_ = p.fetch.Close()
}

// watchIDFile re-runs the pipeline whenever the identifier file changes.
// Checkpointed identifiers are skipped on every re-run.
func watchIDFile(ctx context.Context, out *output.Writer, path string, p *pipeline, logger *slog.Logger) error {
	w, err := watcher.New(path, watcher.Options{Logger: logger})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()
	defer func() { _ = w.Stop() }()

	out.Statusf("~", "Watching %s (%s). Press Ctrl+C to stop", w.Path(), w.Mode())

	watchErrs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			<-errCh
			return nil
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warn("watcher error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return <-errCh
			}
			if !needsRerun(batch) {
				continue
			}
			ids, err := readIDFile(path)
			if err != nil {
				out.Warningf("Cannot read %s: %v", path, err)
				continue
			}
			logger.Info("identifier file changed, re-running", slog.Int("ids", len(ids)))
			if err := p.run(ctx, out, ids); err != nil {
				return err
			}
		}
	}
}

// needsRerun reports whether a batch leaves the file in place.
func needsRerun(batch []watcher.FileEvent) bool {
	for _, ev := range batch {
		if ev.Operation != watcher.OpDelete {
			return true
		}
	}
	return false
}

// readIDSource reads identifiers from path, or from stdin when path is "-".
func readIDSource(path string, stdin io.Reader) ([]string, error) {
	if path == "-" {
		return readIDs(stdin)
	}
	return readIDFile(path)
}

func readIDFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeInvalidInput, "cannot open identifier file", err).
			WithDetail("path", path)
	}
	defer func() { _ = f.Close() }()
	return readIDs(f)
}

// readIDs returns one identifier per non-blank line, skipping # comments
// and duplicates while keeping the first occurrence's order.
func readIDs(r io.Reader) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return ids, nil
}
