package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MaxScore is the upper bound of a category score.
const MaxScore = 10.0

// CriterionScore holds the points awarded for one rubric criterion.
type CriterionScore struct {
	// ID is the rubric criterion identifier.
	ID string `json:"id"`
	// Points awarded, already clamped to [0, Weight].
	Points float64 `json:"points"`
	// Weight is the maximum points for the criterion.
	Weight float64 `json:"weight"`
}

// ArtefactScore is the per-artefact breakdown inside a category.
type ArtefactScore struct {
	Artefact string           `json:"artefact"`
	Criteria []CriterionScore `json:"criteria"`
	// Unscored means the analyzer returned no points for the artefact,
	// so every criterion counts as zero.
	Unscored bool `json:"unscored,omitempty"`
}

// Total returns the sum of the criteria points.
func (a ArtefactScore) Total() float64 {
	var sum float64
	for _, c := range a.Criteria {
		sum += c.Points
	}
	return sum
}

// CategoryAnalysis is the immutable result of one analyzer.
type CategoryAnalysis struct {
	Category  Category        `json:"category"`
	Narrative string          `json:"narrative"`
	Score     float64         `json:"score"`
	Skipped   bool            `json:"skipped,omitempty"`
	Artefacts []ArtefactScore `json:"artefacts,omitempty"`
}

// Valid returns true if the score is within [0, MaxScore].
func (a CategoryAnalysis) Valid() bool {
	return a.Category.Valid() && a.Score >= 0 && a.Score <= MaxScore && !math.IsNaN(a.Score)
}

// AnalyzerFailure records why one category could not be analyzed.
// It is stored in the report, never returned from the flow.
type AnalyzerFailure struct {
	Category Category
	Err      error
}

func (f *AnalyzerFailure) Error() string {
	return fmt.Sprintf("analyze %s: %v", f.Category, f.Err)
}

func (f *AnalyzerFailure) Unwrap() error {
	return f.Err
}

// AnalysisOutcome is the settled result of one analyzer task:
// exactly one of Analysis or Failure is set.
type AnalysisOutcome struct {
	Category Category          `json:"category"`
	Analysis *CategoryAnalysis `json:"analysis,omitempty"`
	Failure  *AnalyzerFailure  `json:"-"`
}

// Succeeded reports whether the analyzer produced an analysis.
func (o AnalysisOutcome) Succeeded() bool {
	return o.Analysis != nil && o.Failure == nil
}

// Skipped reports whether the category had nothing to analyze.
func (o AnalysisOutcome) Skipped() bool {
	return o.Succeeded() && o.Analysis.Skipped
}

// Status returns a short label for the outcome.
func (o AnalysisOutcome) Status() string {
	switch {
	case o.Failure != nil:
		return "failed"
	case o.Skipped():
		return "skipped"
	case o.Analysis != nil:
		return "analyzed"
	default:
		return "pending"
	}
}

// FailureMessage returns the failure text, or "" on success.
func (o AnalysisOutcome) FailureMessage() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Error()
}

type outcomeJSON struct {
	Category Category          `json:"category"`
	Status   string            `json:"status"`
	Analysis *CategoryAnalysis `json:"analysis,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// MarshalJSON encodes the outcome with its status and, for failures, the
// cause of the failure.
func (o AnalysisOutcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{Category: o.Category, Status: o.Status(), Analysis: o.Analysis}
	if o.Failure != nil && o.Failure.Err != nil {
		out.Error = o.Failure.Err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores an outcome written by MarshalJSON. A failure's
// cause comes back as a plain error carrying the original message.
func (o *AnalysisOutcome) UnmarshalJSON(data []byte) error {
	var in outcomeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*o = AnalysisOutcome{Category: in.Category, Analysis: in.Analysis}
	if in.Status == "failed" || in.Error != "" {
		o.Analysis = nil
		o.Failure = &AnalyzerFailure{Category: in.Category, Err: errors.New(in.Error)}
	}
	return nil
}
