// Package artefact implements the artefact analysis branch: a categorizer,
// one analyzer per category run in parallel, and a consolidator that merges
// whatever settled into a single report.
package artefact

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/pkg/models"
)

// Progress checkpoints of the branch.
const (
	PercentBranchStart   = 30
	PercentCategorized   = 40
	PercentAnalyzed      = 85
	PercentConsolidating = 90
	PercentDone          = 100
)

// Config contains configuration options for a Pipeline.
type Config struct {
	// Tools are offered to analyzers when the provider supports tool use.
	Tools textgen.ToolProvider
	// Rubrics defaults to DefaultRubrics().
	Rubrics *RubricSet
	// MaxParallel bounds concurrent analyzers. Zero means one per category.
	MaxParallel int
	// Synthesize adds a prose summary produced by one more service call.
	Synthesize bool
	Logger     *zap.Logger
}

// Pipeline runs the three phases of the artefact branch.
// It holds no per-run state and may serve concurrent flows.
type Pipeline struct {
	svc         textgen.Service
	tools       textgen.ToolProvider
	rubrics     *RubricSet
	maxParallel int
	synthesize  bool
	logger      *zap.Logger
}

// New creates a Pipeline on top of a text-generation service.
func New(svc textgen.Service, cfg Config) *Pipeline {
	p := &Pipeline{
		svc:         svc,
		tools:       cfg.Tools,
		rubrics:     cfg.Rubrics,
		maxParallel: cfg.MaxParallel,
		synthesize:  cfg.Synthesize,
		logger:      cfg.Logger,
	}
	if p.rubrics == nil {
		p.rubrics = DefaultRubrics()
	}
	if p.maxParallel <= 0 || p.maxParallel > models.CategoryCount {
		p.maxParallel = models.CategoryCount
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Rubrics returns the rubrics in use.
func (p *Pipeline) Rubrics() *RubricSet {
	return p.rubrics
}

// AnalyzeAll runs one analyzer per row and waits for every one of them to
// settle. A failing or panicking analyzer becomes a failure placeholder and
// never stops the others. Outcomes come back in fixed category order. The
// only error is the context's, when the run was cancelled.
func (p *Pipeline) AnalyzeAll(ctx context.Context, table models.CategoryTable, run *progress.Run) ([]models.AnalysisOutcome, error) {
	rows := table.Rows()
	outcomes := make([]models.AnalysisOutcome, len(rows))
	var (
		mu      sync.Mutex
		settled int
	)

	var g errgroup.Group
	g.SetLimit(p.maxParallel)
	for i, row := range rows {
		g.Go(func() error {
			outcomes[i] = p.analyzeSettled(ctx, row)

			// Count and report together so messages arrive in settle order.
			mu.Lock()
			defer mu.Unlock()
			settled++
			run.Report(fmt.Sprintf("%s: %s (%d/%d)", row.Category, outcomes[i].Status(), settled, len(rows)),
				PercentCategorized+(PercentAnalyzed-PercentCategorized)*settled/len(rows))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// analyzeSettled always returns an outcome, converting errors and panics.
func (p *Pipeline) analyzeSettled(ctx context.Context, row models.TableRow) (out models.AnalysisOutcome) {
	out.Category = row.Category
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("analyzer panicked",
				zap.String("category", row.Category.Slug()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			out.Analysis = nil
			out.Failure = &models.AnalyzerFailure{Category: row.Category, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Failure = &models.AnalyzerFailure{Category: row.Category, Err: err}
		return out
	}

	analysis, err := p.Analyze(ctx, row)
	if err != nil {
		p.logger.Warn("analyzer failed",
			zap.String("category", row.Category.Slug()),
			zap.Error(err))
		out.Failure = &models.AnalyzerFailure{Category: row.Category, Err: err}
		return out
	}
	out.Analysis = analysis
	return out
}
