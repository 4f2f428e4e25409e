// Package mcpserver exposes the analysis flow to MCP clients.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/artefact"
	"github.com/ShayCichocki/modernity/internal/flow"
	"github.com/ShayCichocki/modernity/internal/version"
)

// ErrMissingRunner is returned by New without a flow runner.
var ErrMissingRunner = errors.New("flow runner is required")

const rubricsURI = "modernity://rubrics"

// Runner executes one flow. *flow.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, in flow.Input) (*flow.Result, error)
}

// Config contains configuration options for a Server.
type Config struct {
	Runner Runner
	// Rubrics, when set, are published as a resource.
	Rubrics *artefact.RubricSet
	Logger  *zap.Logger
}

// Server is the MCP server for modernity.
type Server struct {
	runner  Runner
	rubrics *artefact.RubricSet
	logger  *zap.Logger
	server  *mcp.Server
}

// New creates a server with the analyze_request tool registered.
func New(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, ErrMissingRunner
	}
	s := &Server{
		runner:  cfg.Runner,
		rubrics: cfg.Rubrics,
		logger:  cfg.Logger,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "modernity",
			Version: version.Get(),
		}, nil),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "analyze_request",
		Description: "Route a request to the greeting, code or technology-artefact agent. " +
			"For a list of technologies the result is a modernization report in markdown.",
	}, s.handleAnalyze)

	if s.rubrics != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         rubricsURI,
			Name:        "rubrics",
			Description: "Scoring rubrics used for each technology category",
			MIMEType:    "application/yaml",
		}, s.handleRubrics)
	}
	return s, nil
}

// Run serves over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session on transport. Used by tests and embedders.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// RunHTTP serves streamable HTTP on addr until ctx is cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving MCP over HTTP", zap.String("addr", addr))
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// AnalyzeInput is the input of the analyze_request tool.
type AnalyzeInput struct {
	Text      string          `json:"text" jsonschema:"the user's message: a greeting, source code or a list of technologies"`
	Documents []DocumentInput `json:"documents,omitempty" jsonschema:"optional documents to analyze together with the message"`
}

// DocumentInput is a named document attached to a request.
type DocumentInput struct {
	Name    string `json:"name" jsonschema:"document name, e.g. a file name"`
	Content string `json:"content" jsonschema:"document text"`
}

// AnalyzeOutput is the structured result of the analyze_request tool.
type AnalyzeOutput struct {
	RunID        string  `json:"run_id"`
	Label        string  `json:"label"`
	Branch       string  `json:"branch"`
	Output       string  `json:"output"`
	OverallScore float64 `json:"overall_score,omitempty"`
}

func (s *Server) handleAnalyze(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AnalyzeInput,
) (*mcp.CallToolResult, AnalyzeOutput, error) {
	in := flow.Input{Text: input.Text}
	for _, d := range input.Documents {
		in.Documents = append(in.Documents, flow.Document{Name: d.Name, Content: d.Content})
	}

	res, err := s.runner.Run(ctx, in)
	if err != nil {
		s.logger.Warn("analyze_request failed", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		}, AnalyzeOutput{}, nil
	}

	out := AnalyzeOutput{
		RunID:  res.RunID,
		Label:  string(res.Label),
		Branch: string(res.Branch),
		Output: res.Output,
	}
	if res.Report != nil {
		out.OverallScore = res.Report.OverallScore
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: res.Output}},
	}, out, nil
}

func (s *Server) handleRubrics(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	data, err := s.rubrics.YAML()
	if err != nil {
		return nil, fmt.Errorf("rendering rubrics: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/yaml",
			Text:     string(data),
		}},
	}, nil
}
