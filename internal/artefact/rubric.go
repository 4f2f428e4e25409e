package artefact

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/modernity/pkg/models"
)

//go:embed rubrics.yaml
var defaultRubrics []byte

// Criterion is one point-weighted scoring dimension.
type Criterion struct {
	ID          string  `yaml:"id"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
}

// Rubric is the scoring guide for one category.
type Rubric struct {
	Category models.Category `yaml:"category"`
	Focus    string          `yaml:"focus"`
	Criteria []Criterion     `yaml:"criteria"`
}

// Weight returns the weight of a criterion by ID.
func (r Rubric) Weight(id string) (float64, bool) {
	for _, c := range r.Criteria {
		if strings.EqualFold(c.ID, id) {
			return c.Weight, true
		}
	}
	return 0, false
}

// Validate checks IDs and that weights are positive and sum to MaxScore.
func (r Rubric) Validate() error {
	if !r.Category.Valid() {
		return fmt.Errorf("unknown category %q", r.Category)
	}
	if len(r.Criteria) == 0 {
		return fmt.Errorf("%s: no criteria", r.Category)
	}
	seen := make(map[string]bool, len(r.Criteria))
	var sum float64
	for _, c := range r.Criteria {
		if c.ID == "" {
			return fmt.Errorf("%s: criterion without id", r.Category)
		}
		key := strings.ToLower(c.ID)
		if seen[key] {
			return fmt.Errorf("%s: duplicate criterion %q", r.Category, c.ID)
		}
		seen[key] = true
		if c.Weight <= 0 {
			return fmt.Errorf("%s: criterion %q has non-positive weight %v", r.Category, c.ID, c.Weight)
		}
		sum += c.Weight
	}
	if math.Abs(sum-models.MaxScore) > 1e-9 {
		return fmt.Errorf("%s: weights sum to %v, want %v", r.Category, sum, models.MaxScore)
	}
	return nil
}

// RubricSet holds one rubric per category.
type RubricSet struct {
	byCategory map[models.Category]Rubric
}

type rubricFile struct {
	Rubrics []Rubric `yaml:"rubrics"`
}

// DefaultRubrics returns the built-in rubrics.
func DefaultRubrics() *RubricSet {
	set, err := ParseRubrics(defaultRubrics)
	if err != nil {
		panic(fmt.Sprintf("built-in rubrics are invalid: %v", err))
	}
	return set
}

// ParseRubrics decodes and validates a rubric document. Every category must
// be present exactly once.
func ParseRubrics(data []byte) (*RubricSet, error) {
	var f rubricFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rubrics: %w", err)
	}
	set := &RubricSet{byCategory: make(map[models.Category]Rubric, models.CategoryCount)}
	for _, r := range f.Rubrics {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rubric: %w", err)
		}
		if _, dup := set.byCategory[r.Category]; dup {
			return nil, fmt.Errorf("duplicate rubric for %s", r.Category)
		}
		set.byCategory[r.Category] = r
	}
	for _, c := range models.AllCategories() {
		if _, ok := set.byCategory[c]; !ok {
			return nil, fmt.Errorf("missing rubric for %s", c)
		}
	}
	return set, nil
}

// LoadRubrics reads a rubric override file. An empty path returns the
// built-in rubrics. Categories missing from the file keep their defaults.
func LoadRubrics(path string) (*RubricSet, error) {
	defaults := DefaultRubrics()
	if path == "" {
		return defaults, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rubrics file: %w", err)
	}
	var f rubricFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rubrics file %s: %w", path, err)
	}
	for _, r := range f.Rubrics {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rubric in %s: %w", path, err)
		}
		defaults.byCategory[r.Category] = r
	}
	return defaults, nil
}

// For returns the rubric of a category.
func (s *RubricSet) For(c models.Category) Rubric {
	return s.byCategory[c]
}

// YAML renders the set in category order, in the same format LoadRubrics reads.
func (s *RubricSet) YAML() ([]byte, error) {
	var f rubricFile
	for _, c := range models.AllCategories() {
		f.Rubrics = append(f.Rubrics, s.byCategory[c])
	}
	return yaml.Marshal(f)
}

// prompt renders a rubric for inclusion in an analyzer request.
func (r Rubric) prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scoring rubric for %s (focus: %s). ", r.Category, r.Focus)
	b.WriteString("Award points per artefact for each criterion, between 0 and its weight:\n")
	for _, c := range r.Criteria {
		fmt.Fprintf(&b, "- %s (max %g): %s\n", c.ID, c.Weight, c.Description)
	}
	return b.String()
}
