package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/pkg/version"
)

// Searcher runs dataset queries. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (*search.Response, error)
}

// DatasetGetter loads one dataset by identifier.
type DatasetGetter interface {
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
}

// Server is the MCP server bridging AI clients with dataset search.
type Server struct {
	mcp      *mcp.Server
	engine   Searcher
	datasets DatasetGetter
	logger   *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolSearchDatasets,
		Description: "Search the environmental data catalogue. Accepts free text, a quoted title, " +
			"or a dataset identifier. Combines keyword and semantic ranking and reports " +
			"which mode served the query.",
	},
	{
		Name:        ToolGetDataset,
		Description: "Fetch the full metadata of one dataset by identifier: abstract, keywords, extent and download links.",
	},
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP server.
func NewServer(engine Searcher, datasets DatasetGetter, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: search engine is required", dsherrors.ErrNilDependency)
	}
	if datasets == nil {
		return nil, fmt.Errorf("%w: dataset store is required", dsherrors.ErrNilDependency)
	}

	s := &Server{
		engine:   engine,
		datasets: datasets,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "dsh",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name and returns its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolSearchDatasets:
		query, _ := args["query"].(string)
		limit := 0
		if l, ok := args["limit"].(float64); ok {
			limit = int(l)
		}
		resp, err := s.searchDatasets(ctx, query, limit)
		if err != nil {
			return "", err
		}
		return FormatSearchResults(resp), nil
	case ToolGetDataset:
		id, _ := args["id"].(string)
		ds, err := s.getDataset(ctx, id)
		if err != nil {
			return "", err
		}
		return FormatDataset(ds), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func (s *Server) searchDatasets(ctx context.Context, query string, limit int) (*search.Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit = clampLimit(limit, DefaultToolLimit, 1, MaxToolLimit)

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("limit", limit))

	resp, err := s.engine.Search(ctx, query, limit)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("mode", string(resp.Mode)),
		slog.Int("result_count", len(resp.Hits)))
	return resp, nil
}

func (s *Server) getDataset(ctx context.Context, id string) (*dataset.Dataset, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, NewInvalidParamsError("id parameter is required")
	}
	ds, err := s.datasets.Get(ctx, id)
	if err != nil {
		s.logger.Debug("get dataset failed",
			slog.String("id", id),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return ds, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchDatasets,
		Description: tools[0].Description,
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolGetDataset,
		Description: tools[1].Description,
	}, s.mcpGetDatasetHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchDatasetsInput) (
	*mcp.CallToolResult,
	SearchDatasetsOutput,
	error,
) {
	resp, err := s.searchDatasets(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, SearchDatasetsOutput{}, err
	}
	return nil, ToSearchOutput(resp), nil
}

func (s *Server) mcpGetDatasetHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetDatasetInput) (
	*mcp.CallToolResult,
	DatasetOutput,
	error,
) {
	ds, err := s.getDataset(ctx, input.ID)
	if err != nil {
		return nil, DatasetOutput{}, err
	}
	return nil, ToDatasetOutput(ds), nil
}

// Serve runs the server over stdio until ctx is canceled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
