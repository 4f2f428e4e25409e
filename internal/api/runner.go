package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/textgen"
)

// Runner implements textgen.Service on top of the Anthropic Messages API.
// When a request carries tools it runs the tool-use loop until the model
// ends its turn.
type Runner struct {
	client        *Client
	maxTokens     int64
	temperature   float64
	maxIterations int
	logger        *zap.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// MaxTokens caps each response. Zero means 8192.
	MaxTokens int64
	// Temperature is passed through when positive.
	Temperature float64
	// MaxIterations bounds the tool-use loop. Zero means 10.
	MaxIterations int
	Logger        *zap.Logger
}

// NewRunner creates a new API runner.
func NewRunner(client *Client, cfg RunnerConfig) *Runner {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client:        client,
		maxTokens:     maxTokens,
		temperature:   cfg.Temperature,
		maxIterations: maxIter,
		logger:        logger,
	}
}

// Invoke implements textgen.Service.
func (r *Runner) Invoke(ctx context.Context, req textgen.Request) (textgen.Response, error) {
	var tools []anthropic.ToolUnionParam
	if req.Tools != nil {
		defs, err := req.Tools.Tools(ctx)
		if err != nil {
			return textgen.Response{}, fmt.Errorf("list tools: %w", err)
		}
		tools = ToolDefinitions(defs)
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt())),
	}

	var result textgen.Response
	for iteration := 1; iteration <= r.maxIterations; iteration++ {
		params := anthropic.MessageNewParams{
			Model:     r.client.Model(),
			MaxTokens: r.maxTokens,
			Messages:  messages,
		}
		if sys := req.SystemPrompt(); sys != "" {
			params.System = []anthropic.TextBlockParam{{Text: sys}}
		}
		if r.temperature > 0 {
			params.Temperature = anthropic.Float(r.temperature)
		}
		if len(tools) > 0 {
			params.Tools = tools
		}

		resp, err := r.client.sdk().Messages.New(ctx, params)
		if err != nil {
			return result, classifyError(ctx, err)
		}

		result.InputTokens += resp.Usage.InputTokens
		result.OutputTokens += resp.Usage.OutputTokens
		r.client.Tracker().AddFor(req.Purpose, resp.Usage.InputTokens, resp.Usage.OutputTokens)

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion
		var text strings.Builder

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				text.WriteString(variant.Text)
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				result.ToolCalls++
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				toolResult := r.callTool(ctx, req.Tools, variant.Name, variant.Input)
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, toolResult.Content, toolResult.IsError))
			}
		}

		if resp.StopReason != anthropic.StopReasonToolUse || len(toolResultBlocks) == 0 {
			result.Text = text.String()
			return result, nil
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
	}

	return result, fmt.Errorf("max iterations (%d) reached", r.maxIterations)
}

func (r *Runner) callTool(ctx context.Context, provider textgen.ToolProvider, name string, input json.RawMessage) textgen.ToolResult {
	if provider == nil {
		return textgen.ToolResult{Content: fmt.Sprintf("tool %q is not available", name), IsError: true}
	}
	res, err := provider.Call(ctx, name, input)
	if err != nil {
		r.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return textgen.ToolResult{Content: err.Error(), IsError: true}
	}
	r.logger.Debug("tool call", zap.String("tool", name), zap.Int("bytes", len(res.Content)))
	return res
}

// classifyError maps SDK failures onto the textgen error taxonomy.
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if textgen.IsTransientStatus(apiErr.StatusCode) {
			return &textgen.ServiceUnavailableError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
		}
		return fmt.Errorf("API call failed: %w", err)
	}
	// Anything that is not an API error is a transport failure.
	return &textgen.ServiceUnavailableError{Provider: "anthropic", Err: err}
}
