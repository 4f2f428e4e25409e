package flow

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/artefact"
	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/internal/textgen"
)

// DocumentSeparator separates ingested documents in a composed input.
const DocumentSeparator = "---DOCUMENT---"

// Document is a named piece of text submitted alongside the user's message.
type Document struct {
	Name    string
	Content string
}

// Input is one request to the engine.
type Input struct {
	// Text is what the user typed.
	Text string
	// Documents are prepended to Text as named blocks.
	Documents []Document
}

// Compose renders documents and text into the single string the classifier
// sees. Without documents it returns Text unchanged.
func (in Input) Compose() string {
	var blocks []string
	for _, d := range in.Documents {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			continue
		}
		blocks = append(blocks, "["+d.Name+"]:\n"+content)
	}
	if len(blocks) == 0 {
		return in.Text
	}
	blocks = append(blocks, "[UserInput]:\n"+strings.TrimSpace(in.Text))
	return strings.Join(blocks, "\n"+DocumentSeparator+"\n")
}

// RequiredConfig contains the minimal required configuration for an Engine.
type RequiredConfig struct {
	// Service answers every classification and analysis request.
	Service textgen.Service
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

type engineOptions struct {
	logger   *zap.Logger
	reporter *progress.Reporter
	pipeline artefact.Config
	code     CodeAnalyzer
	greeting Handler
	newID    func() string
}

// WithLogger sets the logger. Runs log with run_id and phase fields.
func WithLogger(l *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithReporter sets the progress reporter shared by every run.
func WithReporter(r *progress.Reporter) Option {
	return func(o *engineOptions) { o.reporter = r }
}

// WithSink creates a reporter delivering to sink.
func WithSink(s progress.Sink) Option {
	return func(o *engineOptions) { o.reporter = progress.NewReporter(s) }
}

// WithTools offers tools to the category analyzers.
func WithTools(t textgen.ToolProvider) Option {
	return func(o *engineOptions) { o.pipeline.Tools = t }
}

// WithPipelineConfig sets the artefact branch configuration. Tools and
// Logger left empty are filled from the other options.
func WithPipelineConfig(cfg artefact.Config) Option {
	return func(o *engineOptions) {
		if cfg.Tools == nil {
			cfg.Tools = o.pipeline.Tools
		}
		o.pipeline = cfg
	}
}

// WithCodeAnalyzer replaces the placeholder code branch.
func WithCodeAnalyzer(a CodeAnalyzer) Option {
	return func(o *engineOptions) { o.code = a }
}

// WithGreeting replaces the greeting branch.
func WithGreeting(h Handler) Option {
	return func(o *engineOptions) { o.greeting = h }
}

// WithRunIDFunc overrides run ID generation.
func WithRunIDFunc(fn func() string) Option {
	return func(o *engineOptions) { o.newID = fn }
}

// Engine builds and runs flows. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	classifier *Classifier
	pipeline   *artefact.Pipeline
	greeting   Handler
	code       CodeAnalyzer
	reporter   *progress.Reporter
	logger     *zap.Logger
	newID      func() string
}

// NewEngine creates an Engine.
func NewEngine(cfg RequiredConfig, opts ...Option) (*Engine, error) {
	if cfg.Service == nil {
		return nil, errors.New("flow: service is required")
	}

	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.reporter == nil {
		o.reporter = progress.NewReporter(nil)
	}
	if o.code == nil {
		o.code = PlaceholderCodeAnalyzer{}
	}
	if o.greeting == nil {
		o.greeting = GreetingHandler{}
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	if o.pipeline.Logger == nil {
		o.pipeline.Logger = o.logger.Named("artefact")
	}

	return &Engine{
		classifier: NewClassifier(cfg.Service, o.logger.Named("classifier")),
		pipeline:   artefact.New(cfg.Service, o.pipeline),
		greeting:   o.greeting,
		code:       o.code,
		reporter:   o.reporter,
		logger:     o.logger,
		newID:      o.newID,
	}, nil
}

// Reporter returns the progress reporter so callers can install sinks
// around a run.
func (e *Engine) Reporter() *progress.Reporter {
	return e.reporter
}

// Pipeline returns the artefact branch.
func (e *Engine) Pipeline() *artefact.Pipeline {
	return e.pipeline
}

// NewFlow creates a single-use flow with the given run ID.
func (e *Engine) NewFlow(runID string) *Flow {
	return &Flow{
		id:         runID,
		classifier: e.classifier,
		greeting:   e.greeting,
		code:       e.code,
		pipeline:   e.pipeline,
		run:        e.reporter.Start(runID),
		logger:     e.logger.With(zap.String("run_id", runID)),
		state:      StateCreated,
	}
}

// Run executes one request on a fresh flow.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	return e.NewFlow(e.newID()).Start(ctx, in.Compose())
}
