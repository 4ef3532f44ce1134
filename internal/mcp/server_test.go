package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/search"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/store"
)

type mockSearcher struct {
	mu     sync.Mutex
	resp   *search.Response
	err    error
	limits []int
}

func (m *mockSearcher) Search(_ context.Context, query string, topK int) (*search.Response, error) {
	m.mu.Lock()
	m.limits = append(m.limits, topK)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &search.Response{Query: query, Mode: search.ModeHybrid, Hits: []*search.Hit{}}, nil
}

func (m *mockSearcher) lastLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits[len(m.limits)-1]
}

type mockGetter map[string]*dataset.Dataset

func (m mockGetter) Get(_ context.Context, id string) (*dataset.Dataset, error) {
	if d, ok := m[id]; ok {
		return d, nil
	}
	return nil, store.ErrNotFound
}

func newTestServer(t *testing.T, s *mockSearcher) *Server {
	t.Helper()
	srv, err := NewServer(s, mockGetter{
		"abc": {Identifier: "abc", Title: "Soil moisture UK", Keywords: []string{"soil"}},
	})
	require.NoError(t, err)
	return srv
}

func TestServer_New_NilDependencies(t *testing.T) {
	// When: dependencies are missing
	_, err := NewServer(nil, mockGetter{})
	_, err2 := NewServer(&mockSearcher{}, nil)

	// Then: both are rejected
	assert.ErrorIs(t, err, dsherrors.ErrNilDependency)
	assert.ErrorIs(t, err2, dsherrors.ErrNilDependency)
}

func TestServer_ListTools(t *testing.T) {
	// Given: a server
	srv := newTestServer(t, &mockSearcher{})

	// When: listing tools
	tools := srv.ListTools()

	// Then: both dataset tools are registered
	require.Len(t, tools, 2)
	assert.Equal(t, ToolSearchDatasets, tools[0].Name)
	assert.Equal(t, ToolGetDataset, tools[1].Name)
	assert.NotEmpty(t, tools[0].Description)
}

func TestServer_CallTool_Search(t *testing.T) {
	// Given: an engine with one hit
	s := &mockSearcher{resp: &search.Response{
		Query: "soil",
		Mode:  search.ModeKeyword,
		Hits:  []*search.Hit{{ID: "abc", Title: "Soil moisture UK", Score: 1}},
	}}
	srv := newTestServer(t, s)

	// When: calling search_datasets with a large limit
	out, err := srv.CallTool(context.Background(), ToolSearchDatasets, map[string]any{
		"query": "soil",
		"limit": float64(500),
	})

	// Then: the markdown lists the hit and the limit is clamped
	require.NoError(t, err)
	assert.Contains(t, out, "Soil moisture UK")
	assert.Contains(t, out, "mode: keyword")
	assert.Equal(t, MaxToolLimit, s.lastLimit())
}

func TestServer_CallTool_DefaultLimit(t *testing.T) {
	// Given: a server
	s := &mockSearcher{}
	srv := newTestServer(t, s)

	// When: calling without a limit
	_, err := srv.CallTool(context.Background(), ToolSearchDatasets, map[string]any{"query": "rivers"})

	// Then: the default limit is used
	require.NoError(t, err)
	assert.Equal(t, DefaultToolLimit, s.lastLimit())
}

func TestServer_CallTool_InvalidQuery(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing", map[string]any{}},
		{"empty", map[string]any{"query": ""}},
		{"whitespace", map[string]any{"query": "   "}},
		{"wrong type", map[string]any{"query": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a server
			s := &mockSearcher{}
			srv := newTestServer(t, s)

			// When: calling with a bad query
			_, err := srv.CallTool(context.Background(), ToolSearchDatasets, tt.args)

			// Then: invalid params, and the engine is not called
			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
			assert.Empty(t, s.limits)
		})
	}
}

func TestServer_CallTool_SearchError(t *testing.T) {
	// Given: an engine that fails
	srv := newTestServer(t, &mockSearcher{err: context.DeadlineExceeded})

	// When: searching
	_, err := srv.CallTool(context.Background(), ToolSearchDatasets, map[string]any{"query": "soil"})

	// Then: the error is mapped
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeTimeout, mcpErr.Code)
}

func TestServer_CallTool_GetDataset(t *testing.T) {
	// Given: a server with one stored dataset
	srv := newTestServer(t, &mockSearcher{})

	// When: fetching it
	out, err := srv.CallTool(context.Background(), ToolGetDataset, map[string]any{"id": " abc "})

	// Then: the markdown describes it
	require.NoError(t, err)
	assert.Contains(t, out, "## Soil moisture UK")
}

func TestServer_CallTool_GetDataset_Errors(t *testing.T) {
	srv := newTestServer(t, &mockSearcher{})

	// When: the id is unknown
	_, err := srv.CallTool(context.Background(), ToolGetDataset, map[string]any{"id": "nope"})

	// Then: dataset not found
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeDatasetNotFound, mcpErr.Code)

	// When: the id is missing
	_, err = srv.CallTool(context.Background(), ToolGetDataset, map[string]any{})

	// Then: invalid params
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestServer_CallTool_UnknownTool(t *testing.T) {
	srv := newTestServer(t, &mockSearcher{})

	// When: calling an unregistered tool
	_, err := srv.CallTool(context.Background(), "search_code", nil)

	// Then: method not found
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
	assert.Same(t, mcpErr, MapError(err))
}

func TestServer_ConcurrentRequests_RaceSafe(t *testing.T) {
	// Given: a server
	s := &mockSearcher{}
	srv := newTestServer(t, s)

	// When: many searches run at once
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := srv.CallTool(context.Background(), ToolSearchDatasets, map[string]any{"query": "soil"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Then: every call reached the engine
	assert.Len(t, s.limits, 20)
}

func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestServer_Protocol_SearchDatasets(t *testing.T) {
	// Given: a connected client
	srv := newTestServer(t, &mockSearcher{resp: &search.Response{
		Query: "soil",
		Class: search.ClassShort,
		Mode:  search.ModeHybrid,
		Hits:  []*search.Hit{{ID: "abc", Title: "Soil moisture UK", Score: 1}},
	}})
	cs := connect(t, srv)

	// When: listing and calling tools over the protocol
	list, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolSearchDatasets,
		Arguments: map[string]any{"query": "soil"},
	})
	require.NoError(t, err)

	// Then: both tools are advertised and the structured output decodes
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearchDatasets, ToolGetDataset}, names)
	assert.False(t, res.IsError)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out SearchDatasetsOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "hybrid", out.Mode)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "abc", out.Results[0].ID)
}

func TestServer_Protocol_GetDatasetNotFound(t *testing.T) {
	// Given: a connected client
	cs := connect(t, newTestServer(t, &mockSearcher{}))

	// When: asking for an unknown dataset
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      ToolGetDataset,
		Arguments: map[string]any{"id": "missing"},
	})

	// Then: the tool reports an error result
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
