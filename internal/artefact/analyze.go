package artefact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/pkg/models"
)

// NothingToAnalyze is the narrative of a category with no artefacts.
const NothingToAnalyze = "Nothing to analyze: no artefacts were listed in this category."

var errNoScores = errors.New("response carries no per-artefact scores")

type analysisAnswer struct {
	Narrative string           `json:"narrative"`
	Artefacts []artefactAnswer `json:"artefacts"`
}

type artefactAnswer struct {
	Artefact string            `json:"artefact"`
	Criteria []criterionAnswer `json:"criteria"`
}

type criterionAnswer struct {
	ID        string  `json:"id"`
	Points    float64 `json:"points"`
	Rationale string  `json:"rationale,omitempty"`
}

func (a analysisAnswer) validate() error {
	if strings.TrimSpace(a.Narrative) == "" {
		return errors.New("empty narrative")
	}
	if len(a.Artefacts) == 0 {
		return errNoScores
	}
	return nil
}

func analysisSchema() *textgen.Schema {
	return &textgen.Schema{
		Name:        "category_analysis",
		Description: "Score every artefact against every rubric criterion. Do not compute totals.",
		Properties: map[string]any{
			"narrative": map[string]any{
				"type":        "string",
				"description": "Markdown assessment of the artefacts: support status, risks and recommended target versions",
			},
			"artefacts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"artefact": map[string]any{"type": "string"},
						"criteria": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"id":        map[string]any{"type": "string"},
									"points":    map[string]any{"type": "number"},
									"rationale": map[string]any{"type": "string"},
								},
								"required": []string{"id", "points"},
							},
						},
					},
					"required": []string{"artefact", "criteria"},
				},
			},
		},
		Required: []string{"narrative", "artefacts"},
	}
}

// Analyze scores one table row. Empty rows short-circuit without calling
// the service. The score is always computed here from the per-criterion
// points; totals in the answer are ignored.
func (p *Pipeline) Analyze(ctx context.Context, row models.TableRow) (*models.CategoryAnalysis, error) {
	if row.Empty() {
		return &models.CategoryAnalysis{
			Category:  row.Category,
			Narrative: NothingToAnalyze,
			Score:     0,
			Skipped:   true,
		}, nil
	}

	rubric := p.rubrics.For(row.Category)
	req := textgen.Request{
		Role: fmt.Sprintf("a senior %s modernization analyst", strings.ToLower(string(row.Category))),
		Goal: "assess how current each artefact is and how costly it is to keep",
		Instructions: rubric.prompt() +
			"Artefacts to analyze: " + row.Cell() + ".",
		Schema:  analysisSchema(),
		Tools:   p.tools,
		Purpose: "analyze:" + row.Category.Slug(),
	}

	resp, err := p.svc.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	answer, err := decodeAnalysis(resp.Text)
	if err != nil {
		return nil, err
	}

	scores, err := scoreArtefacts(rubric, row.Artefacts, answer.Artefacts)
	if err != nil {
		return nil, err
	}

	totals := make([]float64, len(scores))
	for i, s := range scores {
		totals[i] = s.Total()
	}

	p.logger.Debug("category analyzed",
		zap.String("category", row.Category.Slug()),
		zap.Int("artefacts", len(scores)))

	return &models.CategoryAnalysis{
		Category:  row.Category,
		Narrative: strings.TrimSpace(answer.Narrative),
		Score:     round1(mean(totals)),
		Artefacts: scores,
	}, nil
}

func decodeAnalysis(text string) (analysisAnswer, error) {
	attempt := textgen.Parse[analysisAnswer](text, analysisAnswer.validate)
	switch attempt.Kind {
	case textgen.SchemaMatch:
		return attempt.Value, nil
	case textgen.RawObjectMatch:
		var answer analysisAnswer
		answer.Narrative, _ = textgen.StringField(attempt.Object, "narrative", "analysis", "summary", "assessment")
		for key, v := range attempt.Object {
			switch strings.ToLower(key) {
			case "artefacts", "artifacts", "scores":
				raw, err := json.Marshal(v)
				if err != nil {
					continue
				}
				_ = json.Unmarshal(raw, &answer.Artefacts)
			}
		}
		if err := answer.validate(); err != nil {
			return analysisAnswer{}, fmt.Errorf("%w (%v)", err, attempt.Err)
		}
		return answer, nil
	default:
		return analysisAnswer{}, attempt.Err
	}
}

// scoreArtefacts matches answers to the row's artefacts and clamps every
// criterion to its rubric weight. Unknown criteria are ignored and missing
// ones score zero. An artefact the answer leaves out scores zero and is
// marked Unscored; an answer covering none of them is an error.
func scoreArtefacts(rubric Rubric, artefacts []string, answers []artefactAnswer) ([]models.ArtefactScore, error) {
	byName := make(map[string]artefactAnswer, len(answers))
	for _, a := range answers {
		key := strings.ToLower(strings.TrimSpace(a.Artefact))
		if _, dup := byName[key]; !dup {
			byName[key] = a
		}
	}

	var (
		out     []models.ArtefactScore
		matched int
	)
	for _, name := range artefacts {
		answer, ok := byName[strings.ToLower(name)]
		if ok {
			matched++
		}
		points := make(map[string]float64, len(answer.Criteria))
		for _, c := range answer.Criteria {
			points[strings.ToLower(c.ID)] = c.Points
		}
		score := models.ArtefactScore{Artefact: name, Unscored: !ok}
		for _, c := range rubric.Criteria {
			score.Criteria = append(score.Criteria, models.CriterionScore{
				ID:     c.ID,
				Points: clamp(points[strings.ToLower(c.ID)], 0, c.Weight),
				Weight: c.Weight,
			})
		}
		out = append(out, score)
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w for %s", errNoScores, strings.Join(artefacts, ", "))
	}
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
