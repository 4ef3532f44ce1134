package mcp

import (
	"fmt"
	"strings"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
)

// maxAbstractLen bounds the abstract shown in dataset markdown.
const maxAbstractLen = 1200

// FormatSearchResults formats a search response as markdown.
func FormatSearchResults(resp *search.Response) string {
	var sb strings.Builder

	if len(resp.Hits) == 0 {
		fmt.Fprintf(&sb, "No datasets found for \"%s\"", resp.Query)
	} else {
		fmt.Fprintf(&sb, "## Datasets matching \"%s\"\n\n", resp.Query)
		fmt.Fprintf(&sb, "Found %d result", len(resp.Hits))
		if len(resp.Hits) != 1 {
			sb.WriteString("s")
		}
		fmt.Fprintf(&sb, " (mode: %s)\n\n", resp.Mode)

		for i, h := range resp.Hits {
			formatHit(&sb, i+1, h)
		}
	}

	if len(resp.Warnings) > 0 {
		sb.WriteString("\n\n")
		for _, w := range resp.Warnings {
			fmt.Fprintf(&sb, "> Warning: %s\n", w)
		}
	}
	return sb.String()
}

func formatHit(sb *strings.Builder, n int, h *search.Hit) {
	title := h.Title
	if title == "" {
		title = h.ID
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n\n", n, title, h.Score)
	fmt.Fprintf(sb, "Identifier: `%s`", h.ID)
	if h.ExactMatch {
		sb.WriteString(" · exact match")
	}
	sb.WriteString("\n")
	if len(h.Keywords) > 0 {
		fmt.Fprintf(sb, "Keywords: %s\n", strings.Join(h.Keywords, ", "))
	}
	sb.WriteString("\n")
}

// FormatDataset formats a single dataset as markdown.
func FormatDataset(d *dataset.Dataset) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", d.Title)
	fmt.Fprintf(&sb, "Identifier: `%s`\n", d.Identifier)
	if org := d.Organisation(); org != "" {
		fmt.Fprintf(&sb, "Organisation: %s\n", org)
	}
	if d.AccessLevel != "" {
		fmt.Fprintf(&sb, "Access: %s\n", d.AccessLevel)
	}
	if len(d.Keywords) > 0 {
		fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(d.Keywords, ", "))
	}
	if b := d.BoundingBox; b != nil {
		fmt.Fprintf(&sb, "Extent: W %.4f, E %.4f, S %.4f, N %.4f\n", b.West, b.East, b.South, b.North)
	}

	if d.Abstract != "" {
		sb.WriteString("\n### Abstract\n\n")
		sb.WriteString(truncate(d.Abstract, maxAbstractLen))
		sb.WriteString("\n")
	}

	if len(d.Distributions) > 0 {
		sb.WriteString("\n### Access\n\n")
		for _, dist := range d.Distributions {
			name := dist.Name
			if name == "" {
				name = dist.URL
			}
			fmt.Fprintf(&sb, "- [%s](%s)\n", name, dist.URL)
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// clampLimit returns limit within [min, max], or defaultVal when limit <= 0.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
