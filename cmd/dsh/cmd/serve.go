package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/mcp"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/pkg/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Tools:
  search_datasets  hybrid search over stored datasets
  get_dataset      full metadata of one dataset by identifier

Stdout carries protocol messages only. Logs go to the log file;
use 'dsh logs -f' to follow them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe must not write to stdout before or while the server runs.
func runServe(ctx context.Context) error {
	logger := slog.Default()

	a, err := openApp(ctx, loadedConfig(), logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	engine, err := a.searchEngine()
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(engine, a.repo, mcp.WithLogger(logger))
	if err != nil {
		return err
	}

	logger.Info("mcp server starting",
		slog.String("version", version.Version),
		slog.String("data_dir", a.cfg.Storage.DataDir),
		slog.Int("vectors", a.vectors.Count()))
	return srv.Serve(ctx)
}
