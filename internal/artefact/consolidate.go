package artefact

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/pkg/models"
)

// ConsolidationError means no category produced an analysis to report on.
type ConsolidationError struct {
	Failed  []models.Category
	Skipped []models.Category
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("no analyses to consolidate (%d failed, %d skipped)", len(e.Failed), len(e.Skipped))
}

// Consolidate merges the table and every settled outcome into a report.
// Outcomes are reordered to the fixed category order and categories without
// an outcome are reported as failed. Skipped and failed categories are
// listed explicitly.
func (p *Pipeline) Consolidate(ctx context.Context, table models.CategoryTable, outcomes []models.AnalysisOutcome, run *progress.Run) (*models.Report, error) {
	run.Report("consolidating analyses", PercentConsolidating)

	ordered := orderOutcomes(outcomes)
	report := &models.Report{Table: table, Outcomes: ordered}

	var scores []float64
	for _, o := range ordered {
		if o.Succeeded() && !o.Skipped() {
			scores = append(scores, o.Analysis.Score)
		}
	}
	if len(scores) == 0 {
		return nil, &ConsolidationError{Failed: report.Failed(), Skipped: report.SkippedCategories()}
	}
	report.OverallScore = round1(mean(scores))

	body := renderReport(report)
	if p.synthesize {
		summary, err := p.synthesizeSummary(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("synthesis failed, keeping deterministic report", zap.Error(err))
		} else {
			report.Summary = summary
		}
	}

	report.Markdown = body
	if report.Summary != "" {
		report.Markdown = "## Executive Summary\n\n" + report.Summary + "\n\n" + body
	}
	report.Markdown = "# Modernization Report\n\n" + report.Markdown

	run.Report("report ready", PercentDone)
	return report, nil
}

func orderOutcomes(outcomes []models.AnalysisOutcome) []models.AnalysisOutcome {
	byCategory := make(map[models.Category]models.AnalysisOutcome, len(outcomes))
	for _, o := range outcomes {
		if !o.Category.Valid() {
			continue
		}
		if _, dup := byCategory[o.Category]; !dup {
			byCategory[o.Category] = o
		}
	}
	ordered := make([]models.AnalysisOutcome, 0, models.CategoryCount)
	for _, c := range models.AllCategories() {
		o, ok := byCategory[c]
		if !ok || (o.Analysis == nil && o.Failure == nil) {
			o = models.AnalysisOutcome{
				Category: c,
				Failure:  &models.AnalyzerFailure{Category: c, Err: fmt.Errorf("analyzer did not report")},
			}
		}
		ordered = append(ordered, o)
	}
	return ordered
}

func renderReport(r *models.Report) string {
	var b strings.Builder
	b.WriteString("## Artefacts by Category\n\n")
	b.WriteString(CollapseBlankLines(r.Table.Markdown()))
	b.WriteString("\n")

	for _, o := range r.Outcomes {
		switch {
		case o.Failure != nil:
			fmt.Fprintf(&b, "\n## %s (not scored)\n\n", o.Category)
			fmt.Fprintf(&b, "_Analysis failed: %v_\n", o.Failure.Err)
		case o.Skipped():
			fmt.Fprintf(&b, "\n## %s (skipped)\n\n", o.Category)
			fmt.Fprintf(&b, "_%s_\n", o.Analysis.Narrative)
		default:
			a := o.Analysis
			fmt.Fprintf(&b, "\n## %s (score %.1f/10)\n\n", a.Category, a.Score)
			b.WriteString(a.Narrative)
			b.WriteString("\n\n")
			for _, s := range a.Artefacts {
				if s.Unscored {
					fmt.Fprintf(&b, "- %s: 0.0/10 (not scored by the analyzer)\n", s.Artefact)
					continue
				}
				fmt.Fprintf(&b, "- %s: %.1f/10", s.Artefact, s.Total())
				parts := make([]string, 0, len(s.Criteria))
				for _, c := range s.Criteria {
					parts = append(parts, fmt.Sprintf("%s %g/%g", c.ID, c.Points, c.Weight))
				}
				fmt.Fprintf(&b, " (%s)\n", strings.Join(parts, ", "))
			}
		}
	}

	fmt.Fprintf(&b, "\n## Overall\n\nOverall score: %.1f/10 across %d analyzed categories.\n",
		r.OverallScore, len(r.Outcomes)-len(r.Failed())-len(r.SkippedCategories()))
	if skipped := r.SkippedCategories(); len(skipped) > 0 {
		fmt.Fprintf(&b, "Skipped: %s.\n", joinCategories(skipped))
	}
	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintf(&b, "Failed: %s.\n", joinCategories(failed))
	}
	return b.String()
}

func joinCategories(cs []models.Category) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func (p *Pipeline) synthesizeSummary(ctx context.Context, body string) (string, error) {
	resp, err := p.svc.Invoke(ctx, textgen.Request{
		Role: "an integration specialist",
		Goal: "turn per-category findings into a short modernization plan",
		Instructions: "Summarize the report below in at most three short paragraphs: " +
			"the riskiest artefacts first, then a suggested upgrade order. " +
			"Do not change any score.",
		Input:   body,
		Purpose: "synthesize",
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", fmt.Errorf("empty synthesis")
	}
	return summary, nil
}
