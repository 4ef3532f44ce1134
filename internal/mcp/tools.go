package mcp

import (
	"time"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
)

// Tool names.
const (
	ToolSearchDatasets = "search_datasets"
	ToolGetDataset     = "get_dataset"
)

// Limits applied to search_datasets.
const (
	DefaultToolLimit = 10
	MaxToolLimit     = 50
)

// SearchDatasetsInput defines the input schema for search_datasets.
type SearchDatasetsInput struct {
	Query string `json:"query" jsonschema:"free text, a quoted title, or a dataset identifier"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
}

// SearchDatasetsOutput defines the output schema for search_datasets.
type SearchDatasetsOutput struct {
	Query    string          `json:"query" jsonschema:"the query as received"`
	Class    string          `json:"class" jsonschema:"query class: identifier, short, title_like or normal"`
	Mode     string          `json:"mode" jsonschema:"retrieval mode: hybrid, keyword, semantic, lookup or none"`
	Results  []DatasetResult `json:"results" jsonschema:"ranked datasets"`
	Warnings []string        `json:"warnings,omitempty" jsonschema:"degradation notices, e.g. semantic search unavailable"`
}

// DatasetResult is one ranked dataset.
type DatasetResult struct {
	ID          string   `json:"id" jsonschema:"dataset identifier"`
	Title       string   `json:"title,omitempty" jsonschema:"dataset title"`
	Keywords    []string `json:"keywords,omitempty" jsonschema:"dataset keywords"`
	Score       float64  `json:"score" jsonschema:"relevance score between 0 and 1"`
	ExactMatch  bool     `json:"exact_match,omitempty" jsonschema:"true if the query matched the title or a keyword exactly"`
	InBothLists bool     `json:"in_both_lists,omitempty" jsonschema:"true if both keyword and semantic search returned the dataset"`
}

// GetDatasetInput defines the input schema for get_dataset.
type GetDatasetInput struct {
	ID string `json:"id" jsonschema:"dataset identifier"`
}

// DatasetOutput defines the output schema for get_dataset.
type DatasetOutput struct {
	Identifier      string               `json:"identifier"`
	Title           string               `json:"title"`
	Abstract        string               `json:"abstract,omitempty"`
	Lineage         string               `json:"lineage,omitempty"`
	Keywords        []string             `json:"keywords,omitempty"`
	TopicCategories []string             `json:"topic_categories,omitempty"`
	Organisation    string               `json:"organisation,omitempty"`
	AccessLevel     string               `json:"access_level,omitempty"`
	BoundingBox     *BoundingBoxOutput   `json:"bounding_box,omitempty"`
	TemporalStart   string               `json:"temporal_start,omitempty" jsonschema:"start of the covered period, RFC 3339"`
	TemporalEnd     string               `json:"temporal_end,omitempty" jsonschema:"end of the covered period, RFC 3339"`
	Distributions   []DistributionOutput `json:"distributions,omitempty"`
	Related         []string             `json:"related,omitempty" jsonschema:"identifiers of related datasets"`
}

// BoundingBoxOutput is a WGS84 extent.
type BoundingBoxOutput struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	South float64 `json:"south"`
	North float64 `json:"north"`
}

// DistributionOutput is a download or service link.
type DistributionOutput struct {
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	Format string `json:"format,omitempty"`
}

// ToSearchOutput converts an engine response to the tool output.
func ToSearchOutput(resp *search.Response) SearchDatasetsOutput {
	out := SearchDatasetsOutput{
		Query:    resp.Query,
		Class:    string(resp.Class),
		Mode:     string(resp.Mode),
		Results:  make([]DatasetResult, 0, len(resp.Hits)),
		Warnings: resp.Warnings,
	}
	for _, h := range resp.Hits {
		out.Results = append(out.Results, DatasetResult{
			ID:          h.ID,
			Title:       h.Title,
			Keywords:    h.Keywords,
			Score:       h.Score,
			ExactMatch:  h.ExactMatch,
			InBothLists: h.FromSemantic && h.FromKeyword,
		})
	}
	return out
}

// ToDatasetOutput converts a stored dataset to the tool output.
func ToDatasetOutput(d *dataset.Dataset) DatasetOutput {
	out := DatasetOutput{
		Identifier:      d.Identifier,
		Title:           d.Title,
		Abstract:        d.Abstract,
		Lineage:         d.Lineage,
		Keywords:        d.Keywords,
		TopicCategories: d.TopicCategories,
		Organisation:    d.Organisation(),
		AccessLevel:     string(d.AccessLevel),
	}
	if b := d.BoundingBox; b != nil {
		out.BoundingBox = &BoundingBoxOutput{West: b.West, East: b.East, South: b.South, North: b.North}
	}
	if te := d.TemporalExtent; te != nil {
		if te.Start != nil {
			out.TemporalStart = te.Start.Format(time.RFC3339)
		}
		if te.End != nil {
			out.TemporalEnd = te.End.Format(time.RFC3339)
		}
	}
	for _, dist := range d.Distributions {
		out.Distributions = append(out.Distributions, DistributionOutput{
			URL:    dist.URL,
			Name:   dist.Name,
			Format: dist.Format,
		})
	}
	for _, rel := range d.RelatedDocuments {
		out.Related = append(out.Related, rel.Identifier)
	}
	return out
}
