package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/ShayCichocki/modernity/internal/textgen"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures a Gemini provider.
type GeminiConfig struct {
	// APIKey is the Gemini API key. If empty, uses GEMINI_API_KEY env var.
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float64
	// MaxRetries bounds retries of transient failures. Zero means 2.
	MaxRetries int
	// RequestsPerSecond throttles calls across goroutines. Zero means unlimited.
	RequestsPerSecond float64
	Logger            *zap.Logger
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini implements textgen.Service with Google's Gemini models.
// Tool use is not wired for this provider: a request's Tools are ignored.
type Gemini struct {
	generate    generateFunc
	model       string
	maxTokens   int32
	temperature float64
	maxRetries  int
	retryDelay  time.Duration
	limiter     *rate.Limiter
	tracker     *TokenTracker
	logger      *zap.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return newGemini(client.Models.GenerateContent, cfg), nil
}

func newGemini(generate generateFunc, cfg GeminiConfig) *Gemini {
	g := &Gemini{
		generate:    generate,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  time.Second,
		tracker:     NewTokenTracker(),
		logger:      cfg.Logger,
	}
	if g.model == "" {
		g.model = DefaultGeminiModel
	}
	if g.maxRetries == 0 {
		g.maxRetries = 2
	} else if g.maxRetries < 0 {
		g.maxRetries = 0
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Model returns the configured model name.
func (g *Gemini) Model() string {
	return g.model
}

// Tracker returns the token tracker for this provider.
func (g *Gemini) Tracker() *TokenTracker {
	return g.tracker
}

// Invoke implements textgen.Service.
func (g *Gemini) Invoke(ctx context.Context, req textgen.Request) (textgen.Response, error) {
	if req.Tools != nil {
		g.logger.Debug("gemini provider ignores tools", zap.String("purpose", req.Purpose))
	}

	cfg := &genai.GenerateContentConfig{}
	if sys := req.SystemPrompt(); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}
	if g.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.temperature))
	}
	contents := genai.Text(req.UserPrompt())

	var (
		out     textgen.Response
		attempt int
	)
	operation := func() error {
		attempt++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		resp, err := g.generate(ctx, g.model, contents, cfg)
		if err != nil {
			err = classifyGeminiError(ctx, err)
			var unavailable *textgen.ServiceUnavailableError
			if !errors.As(err, &unavailable) {
				return backoff.Permanent(err)
			}
			return err
		}

		out = textgen.Response{Text: resp.Text()}
		if resp.UsageMetadata != nil {
			out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
			out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
		}
		return nil
	}
	notify := func(err error, delay time.Duration) {
		g.logger.Debug("retrying gemini call",
			zap.String("purpose", req.Purpose),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, g.retryPolicy(ctx), notify); err != nil {
		return textgen.Response{}, err
	}
	g.tracker.AddFor(req.Purpose, out.InputTokens, out.OutputTokens)
	return out, nil
}

// retryPolicy doubles the delay after each transient failure, starting at
// retryDelay, for at most maxRetries retries.
func (g *Gemini) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 32 * g.retryDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.maxRetries)), ctx)
}

func classifyGeminiError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if textgen.IsTransientStatus(apiErr.Code) {
			return &textgen.ServiceUnavailableError{Provider: "gemini", StatusCode: apiErr.Code, Err: err}
		}
		return fmt.Errorf("GenAI generate failed: %w", err)
	}
	return &textgen.ServiceUnavailableError{Provider: "gemini", Err: err}
}
