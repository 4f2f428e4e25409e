// Package tools connects modernity to external MCP servers and exposes their
// tools to text-generation providers that support tool use.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/internal/version"
)

// Transport kinds accepted in configuration.
const (
	TransportSSE        = "sse"
	TransportStreamable = "streamable"
)

// ServerConfig describes one MCP server to dial.
type ServerConfig struct {
	Name      string
	URL       string
	Transport string
}

// Registry aggregates the tools of several MCP sessions and routes calls to
// the session that owns each tool. It implements textgen.ToolProvider.
type Registry struct {
	client *mcp.Client
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*mcp.ClientSession
	order    []string
	owners   map[string]string
}

var _ textgen.ToolProvider = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		client: mcp.NewClient(&mcp.Implementation{
			Name:    "modernity",
			Version: version.Get(),
		}, nil),
		logger:   logger,
		sessions: make(map[string]*mcp.ClientSession),
		owners:   make(map[string]string),
	}
}

// Dial connects every configured server. Servers that fail to connect are
// logged and skipped; the joined error reports them.
func (r *Registry) Dial(ctx context.Context, servers []ServerConfig) error {
	var errs []error
	for _, s := range servers {
		transport, err := NewTransport(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.Connect(ctx, s.Name, transport); err != nil {
			r.logger.Warn("mcp server unavailable", zap.String("server", s.Name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewTransport builds the client transport for a server config.
func NewTransport(s ServerConfig) (mcp.Transport, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("mcp server %q: url is required", s.Name)
	}
	switch strings.ToLower(s.Transport) {
	case "", TransportStreamable:
		return &mcp.StreamableClientTransport{Endpoint: s.URL}, nil
	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: s.URL}, nil
	default:
		return nil, fmt.Errorf("mcp server %q: unknown transport %q", s.Name, s.Transport)
	}
}

// Connect opens a session on transport under name.
func (r *Registry) Connect(ctx context.Context, name string, transport mcp.Transport) error {
	if name == "" {
		return fmt.Errorf("mcp server name cannot be empty")
	}
	r.mu.RLock()
	_, exists := r.sessions[name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("mcp server %q already connected", name)
	}

	session, err := r.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect mcp server %q: %w", name, err)
	}

	r.mu.Lock()
	r.sessions[name] = session
	r.order = append(r.order, name)
	r.mu.Unlock()

	r.logger.Info("mcp server connected", zap.String("server", name))
	return nil
}

// Len returns the number of connected servers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Tools lists the tools of every connected server. When two servers offer
// a tool with the same name the first connected server wins.
func (r *Registry) Tools(ctx context.Context) ([]textgen.Tool, error) {
	r.mu.RLock()
	order := append([]string(nil), r.order...)
	sessions := make(map[string]*mcp.ClientSession, len(r.sessions))
	for k, v := range r.sessions {
		sessions[k] = v
	}
	r.mu.RUnlock()

	owners := make(map[string]string)
	var out []textgen.Tool
	for _, name := range order {
		listed, err := listTools(ctx, sessions[name])
		if err != nil {
			return nil, fmt.Errorf("list tools of %q: %w", name, err)
		}
		for _, t := range listed {
			if owner, dup := owners[t.Name]; dup {
				r.logger.Warn("duplicate mcp tool ignored",
					zap.String("tool", t.Name),
					zap.String("server", name),
					zap.String("owner", owner))
				continue
			}
			owners[t.Name] = name
			out = append(out, textgen.Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaMap(t.InputSchema),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	r.mu.Lock()
	r.owners = owners
	r.mu.Unlock()
	return out, nil
}

func listTools(ctx context.Context, session *mcp.ClientSession) ([]*mcp.Tool, error) {
	var all []*mcp.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Tools...)
		if res.NextCursor == "" {
			return all, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// schemaMap normalizes whatever schema representation the SDK returns.
func schemaMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// Call invokes a tool on the server that owns it. Tools must have been
// listed first.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (textgen.ToolResult, error) {
	r.mu.RLock()
	owner, ok := r.owners[name]
	session := r.sessions[owner]
	r.mu.RUnlock()
	if !ok || session == nil {
		return textgen.ToolResult{}, fmt.Errorf("unknown tool %q", name)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return textgen.ToolResult{}, fmt.Errorf("decode arguments of %q: %w", name, err)
		}
	}
	if arguments == nil {
		arguments = map[string]any{}
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return textgen.ToolResult{}, fmt.Errorf("call tool %q on %q: %w", name, owner, err)
	}

	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return textgen.ToolResult{Content: strings.Join(parts, "\n"), IsError: res.IsError}, nil
}

// Close closes every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, s := range r.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", name, err))
		}
	}
	r.sessions = make(map[string]*mcp.ClientSession)
	r.owners = make(map[string]string)
	r.order = nil
	return errors.Join(errs...)
}
