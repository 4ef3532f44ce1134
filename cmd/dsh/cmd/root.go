// Package cmd provides the CLI commands for dsh.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/config"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/logging"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/pkg/version"
)

// Global flags
var (
	debugMode   bool
	dataDirFlag string
	noColorFlag bool
)

// Loaded by the persistent pre-run hook.
var (
	appConfig      *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the dsh CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dsh",
		Short: "Harvest and search environmental dataset metadata",
		Long: `dsh harvests dataset metadata records from the CEH Environmental
Information Data Centre catalogue and serves hybrid search over them.

Records are fetched, parsed, stored and embedded with retries and
checkpoints. Search fuses semantic and keyword rankings with Reciprocal
Rank Fusion and falls back to keyword-only when embeddings are down.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("dsh version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also written to stderr)")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override storage.data_dir")
	cmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newEmbedCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging loads the configuration and opens the log file.
func startLogging(cmd *cobra.Command, _ []string) error {
	if skipsSetup(cmd) {
		return nil
	}

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	if dataDirFlag != "" {
		cfg.Storage.DataDir = dataDirFlag
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	appConfig = cfg

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		// stdout and stderr stay quiet under serve
		WriteToStderr: debugMode && cmd.Name() != "serve",
	})
	if err != nil {
		// A read-only home must not stop search or status.
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: logging disabled: %v\n", err)
		slog.SetDefault(logging.Discard())
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version),
		slog.String("data_dir", cfg.Storage.DataDir))
	return nil
}

// stopLogging flushes and closes the log file.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// skipsSetup reports commands that must work without a valid config.
func skipsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "version", "config", "logs":
			return true
		}
	}
	return false
}

// loadedConfig returns the configuration loaded by the pre-run hook.
func loadedConfig() *config.Config {
	if appConfig == nil {
		return config.NewConfig()
	}
	return appConfig
}

// Execute runs the root command, cancelling on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, dsherrors.FormatForCLI(err))
	}
	return err
}
