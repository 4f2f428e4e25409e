// Package flow routes an input through classification to exactly one branch
// and drives the chosen branch to a terminal result.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/artefact"
	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/pkg/models"
)

// Result is the terminal output of a successful run.
type Result struct {
	RunID          string                `json:"run_id"`
	Classification models.Classification `json:"classification"`
	Label          Label                 `json:"label"`
	Branch         BranchID              `json:"branch"`
	// Output is the text shown to the user. For the artefact branch it is
	// the report markdown.
	Output string `json:"output"`
	// Report is set by the artefact branch only.
	Report *models.Report `json:"report,omitempty"`
}

// Flow is one run of the state machine. It is single-use.
type Flow struct {
	id         string
	classifier *Classifier
	greeting   Handler
	code       CodeAnalyzer
	pipeline   *artefact.Pipeline
	run        *progress.Run
	logger     *zap.Logger

	mu      sync.Mutex
	state   State
	started bool
	record  models.FlowState
}

// ID returns the run ID.
func (f *Flow) ID() string {
	return f.id
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// FlowState returns a copy of the run record.
func (f *Flow) FlowState() models.FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.record
	if rec.Classification != nil {
		c := *rec.Classification
		rec.Classification = &c
	}
	return rec
}

func (f *Flow) transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !CanTransition(f.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.state, to)
	}
	f.state = to
	return nil
}

// fail terminates the flow and wraps err with the phase it happened in.
// A cancelled context always wins over whatever error it caused.
func (f *Flow) fail(ctx context.Context, err error) error {
	f.mu.Lock()
	phase := f.state
	f.state = StateTerminated
	f.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	f.logger.Warn("run failed", zap.String("phase", phase.Phase()), zap.Error(err))
	return &FlowError{RunID: f.id, Phase: phase, Err: err}
}

// Start runs the flow to completion. Every error is a *FlowError, except
// ErrFlowReused for a second call.
func (f *Flow) Start(ctx context.Context, text string) (*Result, error) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil, ErrFlowReused
	}
	f.started = true
	f.mu.Unlock()

	if err := f.transition(StateClassifying); err != nil {
		return nil, f.fail(ctx, err)
	}
	f.logger.Info("run started", zap.String("phase", StateClassifying.Phase()))

	classification, err := f.classifier.Classify(ctx, text, f.run)
	if err != nil {
		return nil, f.fail(ctx, err)
	}
	f.mu.Lock()
	f.record.Input = classification.Payload
	f.record.Classification = &classification
	f.mu.Unlock()

	if err := f.transition(StateRouting); err != nil {
		return nil, f.fail(ctx, err)
	}
	label, err := ParseLabel(classification.Label)
	if err != nil {
		return nil, f.fail(ctx, err)
	}
	branch, err := Route(label)
	if err != nil {
		return nil, f.fail(ctx, err)
	}
	f.run.Report(routedMessage(branch), PercentRouted)

	if err := f.transition(branch.entryState()); err != nil {
		return nil, f.fail(ctx, err)
	}
	f.logger.Info("routed", zap.String("label", string(label)), zap.String("branch", string(branch)))

	result := &Result{
		RunID:          f.id,
		Classification: classification,
		Label:          label,
		Branch:         branch,
	}

	switch branch {
	case BranchGreeting:
		result.Output, err = f.runHandler(ctx, branch, f.greeting, classification.Payload)
	case BranchCode:
		result.Output, err = f.runHandler(ctx, branch, f.code, classification.Payload)
	case BranchArtefact:
		result.Report, err = f.runArtefact(ctx, classification.Payload)
		if result.Report != nil {
			result.Output = result.Report.Markdown
		}
	}
	if err != nil {
		return nil, f.fail(ctx, err)
	}

	if err := f.transition(StateTerminated); err != nil {
		return nil, f.fail(ctx, err)
	}
	f.logger.Info("run complete", zap.String("branch", string(branch)))
	return result, nil
}

func (f *Flow) runHandler(ctx context.Context, branch BranchID, h Handler, payload string) (string, error) {
	msgs := messages[branch]
	f.run.Report(msgs.start, artefact.PercentBranchStart)
	out, err := h.Handle(ctx, payload)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.run.Report(msgs.done, artefact.PercentDone)
	return out, nil
}

func (f *Flow) runArtefact(ctx context.Context, payload string) (*models.Report, error) {
	f.run.Report(messages[BranchArtefact].start, artefact.PercentBranchStart)

	table, err := f.pipeline.Categorize(ctx, payload)
	if err != nil {
		return nil, err
	}
	f.run.Report(fmt.Sprintf("categorized %d artefacts", len(table.Artefacts())), artefact.PercentCategorized)
	f.logger.Debug("categorized",
		zap.String("phase", StateCategorizing.Phase()),
		zap.Strings("artefacts", table.Artefacts()))

	if err := f.transition(StateAnalyzing); err != nil {
		return nil, err
	}
	outcomes, err := f.pipeline.AnalyzeAll(ctx, table, f.run)
	if err != nil {
		return nil, err
	}

	if err := f.transition(StateConsolidating); err != nil {
		return nil, err
	}
	report, err := f.pipeline.Consolidate(ctx, table, outcomes, f.run)
	if err != nil {
		var ce *ConsolidationError
		if errors.As(err, &ce) {
			f.logger.Warn("nothing to consolidate",
				zap.Int("failed", len(ce.Failed)),
				zap.Int("skipped", len(ce.Skipped)))
		}
		return nil, err
	}
	return report, nil
}
