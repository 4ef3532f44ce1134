package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/output"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored datasets",
		Long: `Search stored datasets using hybrid search.

Combines keyword (BM25) and semantic (embedding) retrieval with
Reciprocal Rank Fusion. Short queries favour keyword matches, a
quoted query matches title fragments, and a dataset identifier is
looked up directly. When embeddings are unavailable the search
falls back to keyword-only and says so.`,
		Example: `  dsh search "soil moisture"
  dsh search '"Land Cover Map"' --limit 5
  dsh search peat --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	logger := slog.Default()
	logger.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	a, err := openApp(ctx, loadedConfig(), logger, true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	engine, err := a.searchEngine()
	if err != nil {
		return err
	}

	resp, err := engine.Search(ctx, query, opts.limit)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printSearchResults(output.New(cmd.OutOrStdout(), noColorFlag), resp)
	return nil
}

func printSearchResults(out *output.Writer, resp *search.Response) {
	for _, w := range resp.Warnings {
		out.Warning(w)
	}
	if len(resp.Hits) == 0 {
		out.Statusf("", "No datasets found for %q", resp.Query)
		return
	}

	noun := "results"
	if len(resp.Hits) == 1 {
		noun = "result"
	}
	out.Header(fmt.Sprintf("%d %s for %q (%s, %s)", len(resp.Hits), noun, resp.Query, resp.Mode, resp.Class))

	for i, hit := range resp.Hits {
		title := hit.Title
		if title == "" {
			title = hit.ID
		}
		marker := ""
		if hit.ExactMatch {
			marker = " [exact]"
		}
		out.Statusf(fmt.Sprintf("%2d.", i+1), "%s (%.2f)%s", title, hit.Score, marker)
		out.Status("", hit.ID)
		if len(hit.Keywords) > 0 {
			out.Status("", "Keywords: "+strings.Join(hit.Keywords, ", "))
		}
	}
}
