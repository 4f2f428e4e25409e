package models

import "time"

// Classification is the immutable output of the classifier.
type Classification struct {
	Label   string `json:"agent"`
	Payload string `json:"payload"`
}

// FlowState is the record threaded through a single flow run.
type FlowState struct {
	// Input is the raw text, normalized once before classification.
	Input string
	// Classification is written once by the classifier.
	Classification *Classification
}

// Report is the terminal result of the artefact branch.
type Report struct {
	Table        CategoryTable     `json:"table"`
	Outcomes     []AnalysisOutcome `json:"outcomes"`
	Summary      string            `json:"summary,omitempty"`
	OverallScore float64           `json:"overall_score"`
	Markdown     string            `json:"markdown"`
}

// Analyses returns the successful analyses in fixed category order.
func (r *Report) Analyses() []CategoryAnalysis {
	var out []CategoryAnalysis
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			out = append(out, *o.Analysis)
		}
	}
	return out
}

// Failed returns the categories whose analyzer failed.
func (r *Report) Failed() []Category {
	var out []Category
	for _, o := range r.Outcomes {
		if o.Failure != nil {
			out = append(out, o.Category)
		}
	}
	return out
}

// SkippedCategories returns the categories with nothing to analyze.
func (r *Report) SkippedCategories() []Category {
	var out []Category
	for _, o := range r.Outcomes {
		if o.Skipped() {
			out = append(out, o.Category)
		}
	}
	return out
}

// ProgressEvent is a fire-and-forget progress notification.
type ProgressEvent struct {
	RunID     string    `json:"run_id,omitempty"`
	Message   string    `json:"message"`
	Percent   int       `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}
