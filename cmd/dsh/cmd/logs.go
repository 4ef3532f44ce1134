package cmd

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/config"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View dsh logs",
		Long: `View and tail the dsh log file.

By default, shows the last 50 lines. Use -f to follow new entries in
real time (like 'tail -f'). The file is logging.file from the
configuration, or ~/.dsh/logs/dsh.log.`,
		Example: `  dsh logs                    # Show last 50 lines
  dsh logs -n 100             # Show last 100 lines
  dsh logs -f                 # Follow logs in real time
  dsh logs --level error      # Show only errors
  dsh logs --filter "ingest"  # Filter by pattern`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", logging.DefaultTailLines, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by keyword/pattern (regex)")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	explicit := opts.logFile
	if explicit == "" {
		if cfg, err := config.Load("."); err == nil {
			explicit = cfg.Logging.File
		}
	}
	path, err := logging.FindLogFile(explicit)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: noColorFlag,
	}, out)

	errOut := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(errOut, "Log file: %s\n", path)

	if !opts.follow {
		_, _ = fmt.Fprintln(errOut, "---")
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	_, _ = fmt.Fprintln(errOut, "Following... (Ctrl+C to stop)")
	_, _ = fmt.Fprintln(errOut, "---")

	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case entry := <-entries:
			_, _ = fmt.Fprintln(out, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(errOut, "\n---")
			_, _ = fmt.Fprintln(errOut, "Stopped.")
			return nil
		}
	}
}
