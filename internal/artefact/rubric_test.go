package artefact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/modernity/pkg/models"
)

func TestDefaultRubrics(t *testing.T) {
	set := DefaultRubrics()
	for _, c := range models.AllCategories() {
		r := set.For(c)
		if r.Category != c {
			t.Errorf("For(%s).Category = %q", c, r.Category)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("default rubric invalid: %v", err)
		}
	}
}

func TestRubric_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rubric  Rubric
		wantErr bool
	}{
		{
			name: "weights sum to ten",
			rubric: Rubric{Category: models.CategoryDatabase, Criteria: []Criterion{
				{ID: "a", Weight: 5}, {ID: "b", Weight: 2.5}, {ID: "c", Weight: 2.5},
			}},
		},
		{
			name: "weights sum to nine",
			rubric: Rubric{Category: models.CategoryDatabase, Criteria: []Criterion{
				{ID: "a", Weight: 5}, {ID: "b", Weight: 4},
			}},
			wantErr: true,
		},
		{
			name:    "unknown category",
			rubric:  Rubric{Category: "Frontend", Criteria: []Criterion{{ID: "a", Weight: 10}}},
			wantErr: true,
		},
		{
			name: "duplicate criterion",
			rubric: Rubric{Category: models.CategoryDatabase, Criteria: []Criterion{
				{ID: "a", Weight: 5}, {ID: "A", Weight: 5},
			}},
			wantErr: true,
		},
		{
			name: "zero weight",
			rubric: Rubric{Category: models.CategoryDatabase, Criteria: []Criterion{
				{ID: "a", Weight: 10}, {ID: "b", Weight: 0},
			}},
			wantErr: true,
		},
		{
			name:    "no criteria",
			rubric:  Rubric{Category: models.CategoryDatabase},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rubric.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRubrics_RequiresEveryCategory(t *testing.T) {
	data := []byte(`
rubrics:
  - category: Database
    criteria:
      - id: only
        weight: 10
`)
	if _, err := ParseRubrics(data); err == nil {
		t.Fatal("expected error for missing categories")
	}
}

func TestLoadRubrics_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubrics.yaml")
	data := []byte(`
rubrics:
  - category: Database
    focus: data stores
    criteria:
      - id: support
        weight: 6
      - id: managed
        weight: 4
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadRubrics(path)
	if err != nil {
		t.Fatalf("LoadRubrics failed: %v", err)
	}
	db := set.For(models.CategoryDatabase)
	if len(db.Criteria) != 2 {
		t.Fatalf("database criteria = %d, want 2", len(db.Criteria))
	}
	if w, ok := db.Weight("SUPPORT"); !ok || w != 6 {
		t.Errorf("Weight(SUPPORT) = %v, %v; want 6, true", w, ok)
	}
	if got := set.For(models.CategoryLanguage); len(got.Criteria) != 3 {
		t.Errorf("language rubric lost its defaults: %+v", got)
	}
}

func TestLoadRubrics_Errors(t *testing.T) {
	if _, err := LoadRubrics(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	bad := []byte("rubrics:\n  - category: Database\n    criteria:\n      - id: a\n        weight: 3\n")
	if err := os.WriteFile(path, bad, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRubrics(path); err == nil {
		t.Error("expected error for weights not summing to 10")
	}
}

func TestRubricSet_YAMLRoundTrip(t *testing.T) {
	out, err := DefaultRubrics().YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	set, err := ParseRubrics(out)
	if err != nil {
		t.Fatalf("ParseRubrics of rendered YAML failed: %v", err)
	}
	if got := set.For(models.CategoryDevSecOps).Criteria[0].ID; got != "tool_currency" {
		t.Errorf("first devsecops criterion = %q", got)
	}
}
