package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookupInput struct {
	Q string `json:"q" jsonschema:"technology to look up"`
}

type lookupOutput struct {
	Answer string `json:"answer"`
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func newServer(name string, register func(*mcp.Server)) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: name, Version: "v0.0.1"}, nil)
	register(srv)
	return srv
}

func connect(t *testing.T, ctx context.Context, reg *Registry, name string, srv *mcp.Server) {
	t.Helper()
	t1, t2 := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, t1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })
	require.NoError(t, reg.Connect(ctx, name, t2))
}

func TestRegistry_ListAndCall(t *testing.T) {
	ctx := context.Background()

	primary := newServer("primary", func(s *mcp.Server) {
		mcp.AddTool(s, &mcp.Tool{Name: "lookup", Description: "Look up a technology"},
			func(_ context.Context, _ *mcp.CallToolRequest, in lookupInput) (*mcp.CallToolResult, lookupOutput, error) {
				return textResult("primary: " + in.Q), lookupOutput{}, nil
			})
		mcp.AddTool(s, &mcp.Tool{Name: "explode", Description: "Always fails"},
			func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, lookupOutput, error) {
				return nil, lookupOutput{}, errors.New("boom")
			})
	})
	secondary := newServer("secondary", func(s *mcp.Server) {
		mcp.AddTool(s, &mcp.Tool{Name: "lookup", Description: "Shadowed"},
			func(_ context.Context, _ *mcp.CallToolRequest, in lookupInput) (*mcp.CallToolResult, lookupOutput, error) {
				return textResult("secondary: " + in.Q), lookupOutput{}, nil
			})
		mcp.AddTool(s, &mcp.Tool{Name: "eol", Description: "End-of-life dates"},
			func(_ context.Context, _ *mcp.CallToolRequest, in lookupInput) (*mcp.CallToolResult, lookupOutput, error) {
				return textResult("eol for " + in.Q), lookupOutput{}, nil
			})
	})

	reg := NewRegistry(nil)
	defer reg.Close()
	connect(t, ctx, reg, "primary", primary)
	connect(t, ctx, reg, "secondary", secondary)
	assert.Equal(t, 2, reg.Len())

	tools, err := reg.Tools(ctx)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"eol", "explode", "lookup"}, names)
	assert.Equal(t, "Look up a technology", tools[2].Description)
	assert.Contains(t, tools[2].InputSchema, "properties")

	res, err := reg.Call(ctx, "lookup", json.RawMessage(`{"q":"redis"}`))
	require.NoError(t, err)
	assert.Equal(t, "primary: redis", res.Content)
	assert.False(t, res.IsError)

	res, err = reg.Call(ctx, "eol", json.RawMessage(`{"q":"java 8"}`))
	require.NoError(t, err)
	assert.Equal(t, "eol for java 8", res.Content)

	res, err = reg.Call(ctx, "explode", nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "boom")

	_, err = reg.Call(ctx, "missing", nil)
	assert.Error(t, err)

	_, err = reg.Call(ctx, "lookup", json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestRegistry_ConnectRejectsDuplicatesAndBlankNames(t *testing.T) {
	ctx := context.Background()
	srv := newServer("s", func(*mcp.Server) {})
	reg := NewRegistry(nil)
	defer reg.Close()

	connect(t, ctx, reg, "s", srv)

	_, t2 := mcp.NewInMemoryTransports()
	assert.Error(t, reg.Connect(ctx, "s", t2))
	assert.Error(t, reg.Connect(ctx, "", t2))
}

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(ServerConfig{Name: "a", URL: "http://localhost:9000/mcp"})
	require.NoError(t, err)
	assert.IsType(t, &mcp.StreamableClientTransport{}, tr)

	tr, err = NewTransport(ServerConfig{Name: "b", URL: "http://localhost:9000/sse", Transport: "SSE"})
	require.NoError(t, err)
	assert.IsType(t, &mcp.SSEClientTransport{}, tr)

	_, err = NewTransport(ServerConfig{Name: "c"})
	assert.Error(t, err)

	_, err = NewTransport(ServerConfig{Name: "d", URL: "x", Transport: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRegistry_DialReportsFailures(t *testing.T) {
	reg := NewRegistry(nil)
	defer reg.Close()

	err := reg.Dial(context.Background(), []ServerConfig{{Name: "bad", Transport: "nope", URL: "x"}})
	assert.Error(t, err)
	assert.Equal(t, 0, reg.Len())
}
