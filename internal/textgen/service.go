// Package textgen defines the contract between the analysis flow and the
// external text-generation providers, plus the layered parsing applied to
// their output.
package textgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Service is an external text-generation capability.
// Implementations must be safe for concurrent use: the artefact branch calls
// Invoke from several goroutines at once.
type Service interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(ctx context.Context, req Request) (Response, error)

// Invoke calls f.
func (f ServiceFunc) Invoke(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Request describes one call to the text-generation service.
type Request struct {
	// Role is the persona the model should adopt.
	Role string
	// Goal is what the persona is trying to achieve.
	Goal string
	// Instructions is the task description.
	Instructions string
	// Input is the user payload the instructions apply to.
	Input string
	// Schema, when set, asks for a JSON object of that shape.
	Schema *Schema
	// Tools may be invoked by the model while answering.
	Tools ToolProvider
	// Purpose tags the call for logs and token accounting (e.g. "classify").
	Purpose string
}

// SystemPrompt renders role, goal and schema into a system message.
func (r Request) SystemPrompt() string {
	var b strings.Builder
	if r.Role != "" {
		fmt.Fprintf(&b, "You are %s.\n", r.Role)
	}
	if r.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", r.Goal)
	}
	if r.Schema != nil {
		b.WriteString("\nRespond ONLY with a single JSON object, no prose and no code fences.\n")
		if r.Schema.Description != "" {
			fmt.Fprintf(&b, "%s\n", r.Schema.Description)
		}
		if len(r.Schema.Properties) > 0 {
			schemaJSON, err := json.MarshalIndent(r.Schema.JSON(), "", "  ")
			if err == nil {
				fmt.Fprintf(&b, "JSON schema:\n%s\n", schemaJSON)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// UserPrompt renders instructions and input into the user message.
func (r Request) UserPrompt() string {
	if r.Input == "" {
		return r.Instructions
	}
	return fmt.Sprintf("%s\n\nINPUT:\n%s", r.Instructions, r.Input)
}

// Schema is a minimal JSON-schema description of a structured answer.
type Schema struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// JSON returns the schema as a JSON-schema object.
func (s *Schema) JSON() map[string]any {
	out := map[string]any{
		"type":       "object",
		"properties": s.Properties,
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// Response is the raw answer of a provider.
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
	ToolCalls    int
}

// Tool describes a callable the model may invoke.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolProvider exposes named tools to providers that support tool use.
// The flow never calls tools directly.
type ToolProvider interface {
	Tools(ctx context.Context) ([]Tool, error)
	Call(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the textual output of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}
