package artefact

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/internal/textgen/textgentest"
	"github.com/ShayCichocki/modernity/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type events struct {
	mu   sync.Mutex
	list []progress.Event
}

func (e *events) OnProgress(ev progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, ev)
}

func (e *events) percents() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.list))
	for i, ev := range e.list {
		out[i] = ev.Percent
	}
	return out
}

// scoreJSON answers an analyzer request with the same points for every
// criterion of every artefact.
func scoreJSON(narrative string, points map[string][3]float64, ids [3]string) string {
	var arts []string
	for name, p := range points {
		arts = append(arts, fmt.Sprintf(
			`{"artefact":%q,"criteria":[{"id":%q,"points":%g},{"id":%q,"points":%g},{"id":%q,"points":%g}]}`,
			name, ids[0], p[0], ids[1], p[1], ids[2], p[2]))
	}
	return fmt.Sprintf(`{"narrative":%q,"artefacts":[%s]}`, narrative, strings.Join(arts, ","))
}

func criterionIDs(c models.Category) [3]string {
	r := DefaultRubrics().For(c)
	return [3]string{r.Criteria[0].ID, r.Criteria[1].ID, r.Criteria[2].ID}
}

func fullTable() models.CategoryTable {
	return models.NewCategoryTable(map[models.Category][]string{
		models.CategoryLanguage:       {"Java 8"},
		models.CategoryArchitecture:   {"Spring Boot 2.3"},
		models.CategoryInfrastructure: {"Tomcat 8"},
		models.CategoryDatabase:       {"MySQL 5.7"},
		models.CategoryDevSecOps:      {"Jenkins 2"},
	})
}

// scriptAll registers a one-artefact analyzer answer for every non-empty row.
func scriptAll(fake *textgentest.Fake, table models.CategoryTable, delay func() time.Duration) {
	for _, row := range table.Rows() {
		if row.Empty() {
			continue
		}
		answer := scoreJSON(row.Category.Slug()+" findings",
			map[string][3]float64{row.Artefacts[0]: {2, 2, 2}}, criterionIDs(row.Category))
		fake.On("analyze:"+row.Category.Slug(), func(ctx context.Context, _ textgen.Request) (string, error) {
			if delay != nil {
				select {
				case <-time.After(delay()):
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			return answer, nil
		})
	}
}

func TestCollapseBlankLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no blank lines", "a\nb", "a\nb"},
		{"double newline", "a\n\nb", "a\nb"},
		{"many blank lines", "a\n\n\n\nb", "a\nb"},
		{"whitespace-only lines", "a\n  \n\t\nb", "a\nb"},
		{"crlf", "a\r\n\r\nb", "a\nb"},
		{"keeps indentation", "a\n\n  b", "a\n  b"},
		{"trailing", "a\n\n", "a\n"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := CollapseBlankLines(tt.in)
			assert.Equal(t, tt.want, once)
			assert.Equal(t, once, CollapseBlankLines(once), "not idempotent")
		})
	}
}

func TestCategorize_ScenarioTwo(t *testing.T) {
	payload := "Java 8, Spring Boot 2.3, MySQL 5.7, Angular 12"
	fake := textgentest.New().Reply("categorize",
		"```json\n"+`{"language":["Java 8"],"architecture":["Spring Boot 2.3","Angular 12"],`+
			`"infrastructure":["Kubernetes"],"database":["MySQL 5.7"],"devsecops":[]}`+"\n```")
	p := New(fake, Config{})

	table, err := p.Categorize(context.Background(), payload)
	require.NoError(t, err)

	rows := table.Rows()
	require.Len(t, rows, models.CategoryCount)
	for i, c := range models.AllCategories() {
		assert.Equal(t, c, rows[i].Category)
	}
	assert.Equal(t, []string{"Java 8"}, rows[0].Artefacts)
	assert.Equal(t, []string{"Spring Boot 2.3", "Angular 12"}, rows[1].Artefacts)
	assert.True(t, rows[2].Empty(), "invented artefact kept")
	assert.Equal(t, []string{"MySQL 5.7"}, rows[3].Artefacts)
	assert.Equal(t, models.NoneMarker, rows[4].Cell())

	for _, a := range table.Artefacts() {
		assert.Contains(t, strings.ToLower(payload), strings.ToLower(a))
	}
	assert.NotContains(t, table.Markdown(), "\n\n")

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, payload, calls[0].Input)
	assert.NotNil(t, calls[0].Schema)
}

func TestCategorize_DropsPartialTokenMatches(t *testing.T) {
	fake := textgentest.New().Reply("categorize",
		`{"language":["Java","JavaScript ES6"],"architecture":[],"infrastructure":[],`+
			`"database":["SQL","PostgreSQL 14"],"devsecops":[]}`)
	p := New(fake, Config{})

	table, err := p.Categorize(context.Background(), "JavaScript ES6, PostgreSQL 14")
	require.NoError(t, err)

	lang, _ := table.Row(models.CategoryLanguage)
	db, _ := table.Row(models.CategoryDatabase)
	assert.Equal(t, []string{"JavaScript ES6"}, lang.Artefacts)
	assert.Equal(t, []string{"PostgreSQL 14"}, db.Artefacts)
}

func TestMentioned(t *testing.T) {
	tests := []struct {
		text string
		term string
		want bool
	}{
		{"java 8 and mysql", "java 8", true},
		{"javascript es6", "java", false},
		{"postgresql 14", "sql", false},
		{"postgresql 14", "postgresql", true},
		{"python 3.11", "python 3.1", false},
		{"java, javascript", "javascript", true},
		{"javascript and java", "java", true},
		{"we use c++ 17", "c++", true},
		{"asp.net core", ".net", true},
		{"(redis)", "redis", true},
		{"redis", "", false},
	}
	for _, tt := range tests {
		if got := mentioned(tt.text, tt.term); got != tt.want {
			t.Errorf("mentioned(%q, %q) = %v, want %v", tt.text, tt.term, got, tt.want)
		}
	}
}

func TestCategorize_RawObjectFallback(t *testing.T) {
	fake := textgentest.New().Reply("categorize",
		`Here you go: {"Programming Language": "Java 8, Go 1.22", "Database": ["MySQL 5.7", "java 8"], "notes": 3}`)
	p := New(fake, Config{})

	table, err := p.Categorize(context.Background(), "We run Java 8 on MySQL 5.7")
	require.NoError(t, err)

	lang, _ := table.Row(models.CategoryLanguage)
	db, _ := table.Row(models.CategoryDatabase)
	assert.Equal(t, []string{"Java 8"}, lang.Artefacts)
	assert.Equal(t, []string{"MySQL 5.7"}, db.Artefacts, "duplicates keep the first category")
}

func TestCategorize_MarkdownTableFallback(t *testing.T) {
	fake := textgentest.New().Reply("categorize",
		"| Category | Artefacts |\n\n|---|---|\n\n| Programming Language | Java 8 |\n\n"+
			"| System Architecture | (None) |\n\n| Database | MySQL 5.7 |\n")
	p := New(fake, Config{})

	table, err := p.Categorize(context.Background(), "Java 8 and MySQL 5.7")
	require.NoError(t, err)

	want := []string{"Java 8", "(None)", "(None)", "MySQL 5.7", "(None)"}
	var got []string
	for _, r := range table.Rows() {
		got = append(got, r.Cell())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestCategorize_Errors(t *testing.T) {
	p := New(textgentest.New().Reply("categorize", "I cannot help with that."), Config{})
	_, err := p.Categorize(context.Background(), "Java 8")
	var catErr *CategorizationError
	require.ErrorAs(t, err, &catErr)
	assert.ErrorIs(t, err, textgen.ErrNoJSON)

	unavailable := &textgen.ServiceUnavailableError{Provider: "fake", StatusCode: 529, Err: errors.New("overloaded")}
	p = New(textgentest.New().Fail("categorize", unavailable), Config{})
	_, err = p.Categorize(context.Background(), "Java 8")
	assert.ErrorIs(t, err, unavailable)
}

func TestAnalyze_EmptyRowShortCircuits(t *testing.T) {
	fake := textgentest.New()
	p := New(fake, Config{})

	for _, c := range models.AllCategories() {
		a, err := p.Analyze(context.Background(), models.TableRow{Category: c})
		require.NoError(t, err)
		assert.Equal(t, 0.0, a.Score)
		assert.True(t, a.Skipped)
		assert.Equal(t, NothingToAnalyze, a.Narrative)
		assert.True(t, a.Valid())
	}
	assert.Empty(t, fake.Calls())
}

func TestAnalyze_ScoreComputedFromClampedPoints(t *testing.T) {
	ids := criterionIDs(models.CategoryLanguage)
	answer := fmt.Sprintf(`{"narrative":"Java 8 is past free support.","artefacts":[`+
		`{"artefact":"java 8","criteria":[{"id":%q,"points":9},{"id":%q,"points":2},{"id":%q,"points":-4}],"total":10},`+
		`{"artefact":"Go 1.22","criteria":[{"id":%q,"points":3},{"id":%q,"points":3},{"id":%q,"points":3}]},`+
		`{"artefact":"COBOL","criteria":[{"id":%q,"points":10}]}]}`,
		ids[0], ids[1], ids[2], ids[0], ids[1], ids[2], ids[0])
	fake := textgentest.New().Reply("analyze:language", answer)
	p := New(fake, Config{})

	a, err := p.Analyze(context.Background(), models.TableRow{
		Category:  models.CategoryLanguage,
		Artefacts: []string{"Java 8", "Go 1.22"},
	})
	require.NoError(t, err)

	// Java 8: min(9,4) + 2 + max(-4,0) = 6; Go: 9; mean 7.5
	assert.Equal(t, 7.5, a.Score)
	require.Len(t, a.Artefacts, 2)
	assert.Equal(t, "Java 8", a.Artefacts[0].Artefact)
	assert.Equal(t, 6.0, a.Artefacts[0].Total())
	assert.Equal(t, 4.0, a.Artefacts[0].Criteria[0].Points)
	assert.Equal(t, 0.0, a.Artefacts[0].Criteria[2].Points)
	assert.False(t, a.Skipped)

	call := fake.Calls()[0]
	assert.Contains(t, call.Instructions, "Java 8, Go 1.22")
	assert.Contains(t, call.Instructions, ids[0])
}

func TestAnalyze_UnansweredArtefactScoresZero(t *testing.T) {
	ids := criterionIDs(models.CategoryDatabase)
	answer := scoreJSON("MySQL 5.7 is near end of life.", map[string][3]float64{"MySQL 5.7": {3, 3, 2}}, ids)
	p := New(textgentest.New().Reply("analyze:database", answer), Config{})

	a, err := p.Analyze(context.Background(), models.TableRow{
		Category:  models.CategoryDatabase,
		Artefacts: []string{"MySQL 5.7", "Oracle 11g"},
	})
	require.NoError(t, err)

	require.Len(t, a.Artefacts, 2)
	assert.False(t, a.Artefacts[0].Unscored)
	assert.Equal(t, "Oracle 11g", a.Artefacts[1].Artefact)
	assert.True(t, a.Artefacts[1].Unscored)
	assert.Equal(t, 0.0, a.Artefacts[1].Total())
	// (8 + 0) / 2
	assert.Equal(t, 4.0, a.Score)

	report, err := p.Consolidate(context.Background(),
		models.NewCategoryTable(map[models.Category][]string{models.CategoryDatabase: {"MySQL 5.7", "Oracle 11g"}}),
		[]models.AnalysisOutcome{{Category: models.CategoryDatabase, Analysis: a}}, nil)
	require.NoError(t, err)
	assert.Contains(t, report.Markdown, "Oracle 11g: 0.0/10 (not scored by the analyzer)")
}

func TestAnalyze_RoundsToOneDecimal(t *testing.T) {
	ids := criterionIDs(models.CategoryDatabase)
	answer := scoreJSON("ok", map[string][3]float64{"A": {1, 1, 1}}, ids)
	answer = strings.Replace(answer, `]}]}`, `]},{"artefact":"B","criteria":[{"id":"`+ids[0]+`","points":1}]},{"artefact":"C","criteria":[{"id":"`+ids[0]+`","points":1}]}]}`, 1)
	p := New(textgentest.New().Reply("analyze:database", answer), Config{})

	a, err := p.Analyze(context.Background(), models.TableRow{Category: models.CategoryDatabase, Artefacts: []string{"A", "B", "C"}})
	require.NoError(t, err)
	// (3 + 1 + 1) / 3 = 1.666...
	assert.Equal(t, 1.7, a.Score)
}

func TestAnalyze_MalformedAnswersFail(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"prose", "Java 8 is old."},
		{"no scores", `{"narrative":"fine"}`},
		{"unknown artefacts", `{"narrative":"fine","artefacts":[{"artefact":"Rust","criteria":[]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(textgentest.New().Reply("analyze:language", tt.answer), Config{})
			_, err := p.Analyze(context.Background(), models.TableRow{
				Category:  models.CategoryLanguage,
				Artefacts: []string{"Java 8"},
			})
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeAll_OneFailureSettlesAll(t *testing.T) {
	table := fullTable()
	fake := textgentest.New()
	scriptAll(fake, table, nil)
	fake.Fail("analyze:database", &textgen.ServiceUnavailableError{Provider: "fake", StatusCode: 503, Err: errors.New("down")})

	rec := &events{}
	p := New(fake, Config{})
	outcomes, err := p.AnalyzeAll(context.Background(), table, progress.NewReporter(rec).Start("run"))
	require.NoError(t, err)
	require.Len(t, outcomes, models.CategoryCount)

	var statuses []string
	for _, o := range outcomes {
		statuses = append(statuses, o.Status())
	}
	want := []string{"analyzed", "analyzed", "analyzed", "failed", "analyzed"}
	if diff := cmp.Diff(want, statuses); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
	var unavailable *textgen.ServiceUnavailableError
	assert.ErrorAs(t, outcomes[3].Failure, &unavailable)
	assert.Equal(t, models.CategoryDatabase, outcomes[3].Failure.Category)

	report, err := p.Consolidate(context.Background(), table, outcomes, nil)
	require.NoError(t, err)
	assert.Len(t, report.Analyses(), 4)
	assert.Equal(t, []models.Category{models.CategoryDatabase}, report.Failed())
	assert.Contains(t, report.Markdown, "## Database (not scored)")

	percents := rec.percents()
	require.Len(t, percents, models.CategoryCount)
	assert.Equal(t, PercentAnalyzed, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
}

func TestAnalyzeAll_FixedOrderRegardlessOfCompletion(t *testing.T) {
	table := fullTable()
	for round := 0; round < 5; round++ {
		var mu sync.Mutex
		rng := rand.New(rand.NewSource(int64(round)))
		fake := textgentest.New()
		scriptAll(fake, table, func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return time.Duration(rng.Intn(20)) * time.Millisecond
		})

		outcomes, err := New(fake, Config{}).AnalyzeAll(context.Background(), table, nil)
		require.NoError(t, err)
		var got []models.Category
		for _, o := range outcomes {
			require.True(t, o.Succeeded())
			got = append(got, o.Analysis.Category)
		}
		assert.Equal(t, models.AllCategories(), got)
	}
}

func TestAnalyzeAll_SettleCountsArriveInOrder(t *testing.T) {
	table := fullTable()
	for round := 0; round < 10; round++ {
		var mu sync.Mutex
		rng := rand.New(rand.NewSource(int64(round)))
		fake := textgentest.New()
		scriptAll(fake, table, func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return time.Duration(rng.Intn(3)) * time.Millisecond
		})

		rec := &events{}
		_, err := New(fake, Config{}).AnalyzeAll(context.Background(), table, progress.NewReporter(rec).Start("run"))
		require.NoError(t, err)

		rec.mu.Lock()
		list := append([]progress.Event(nil), rec.list...)
		rec.mu.Unlock()
		require.Len(t, list, models.CategoryCount)
		for i, ev := range list {
			assert.True(t, strings.HasSuffix(ev.Message, fmt.Sprintf("(%d/%d)", i+1, models.CategoryCount)),
				"event %d out of order: %q", i, ev.Message)
			if i > 0 {
				assert.Greater(t, ev.Percent, list[i-1].Percent)
			}
		}
	}
}

func TestAnalyzeAll_RespectsParallelLimit(t *testing.T) {
	table := fullTable()
	var mu sync.Mutex
	inFlight, peak := 0, 0
	fake := textgentest.New()
	for _, c := range models.AllCategories() {
		row, _ := table.Row(c)
		answer := scoreJSON("x", map[string][3]float64{row.Artefacts[0]: {1, 1, 1}}, criterionIDs(c))
		fake.On("analyze:"+c.Slug(), func(context.Context, textgen.Request) (string, error) {
			mu.Lock()
			inFlight++
			peak = max(peak, inFlight)
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return answer, nil
		})
	}

	_, err := New(fake, Config{MaxParallel: 2}).AnalyzeAll(context.Background(), table, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, 2)
}

func TestAnalyzeAll_PanicBecomesFailure(t *testing.T) {
	table := fullTable()
	fake := textgentest.New()
	scriptAll(fake, table, nil)
	fake.On("analyze:infrastructure", func(context.Context, textgen.Request) (string, error) {
		panic("provider bug")
	})

	outcomes, err := New(fake, Config{}).AnalyzeAll(context.Background(), table, nil)
	require.NoError(t, err)
	require.NotNil(t, outcomes[2].Failure)
	assert.Contains(t, outcomes[2].Failure.Error(), "provider bug")
	assert.True(t, outcomes[0].Succeeded())
	assert.True(t, outcomes[4].Succeeded())
}

func TestAnalyzeAll_EmptyRowsMakeNoCalls(t *testing.T) {
	table := models.NewCategoryTable(map[models.Category][]string{
		models.CategoryLanguage: {"Java 8"},
		models.CategoryDatabase: {"MySQL 5.7"},
	})
	fake := textgentest.New()
	scriptAll(fake, table, nil)

	outcomes, err := New(fake, Config{}).AnalyzeAll(context.Background(), table, nil)
	require.NoError(t, err)

	assert.Len(t, fake.Calls(), 2)
	for _, i := range []int{1, 2, 4} {
		assert.True(t, outcomes[i].Skipped(), "row %d", i)
		assert.Equal(t, 0.0, outcomes[i].Analysis.Score)
	}
}

func TestAnalyzeAll_Cancelled(t *testing.T) {
	table := fullTable()
	ctx, cancel := context.WithCancel(context.Background())
	fake := textgentest.New()
	started := make(chan struct{}, models.CategoryCount)
	for _, c := range models.AllCategories() {
		fake.On("analyze:"+c.Slug(), func(ctx context.Context, _ textgen.Request) (string, error) {
			started <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		})
	}

	go func() {
		<-started
		cancel()
	}()
	outcomes, err := New(fake, Config{}).AnalyzeAll(ctx, table, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, outcomes)
}

func TestConsolidate_NoAnalysesIsAnError(t *testing.T) {
	table := models.NewCategoryTable(nil)
	p := New(textgentest.New(), Config{})

	outcomes, err := p.AnalyzeAll(context.Background(), table, nil)
	require.NoError(t, err)

	_, err = p.Consolidate(context.Background(), table, outcomes, nil)
	var consErr *ConsolidationError
	require.ErrorAs(t, err, &consErr)
	assert.Len(t, consErr.Skipped, models.CategoryCount)
	assert.Empty(t, consErr.Failed)
}

func TestConsolidate_ReordersAndFillsMissing(t *testing.T) {
	table := fullTable()
	p := New(textgentest.New(), Config{})
	db := &models.CategoryAnalysis{Category: models.CategoryDatabase, Narrative: "db", Score: 4}
	lang := &models.CategoryAnalysis{Category: models.CategoryLanguage, Narrative: "lang", Score: 8}

	report, err := p.Consolidate(context.Background(), table, []models.AnalysisOutcome{
		{Category: models.CategoryDatabase, Analysis: db},
		{Category: models.CategoryLanguage, Analysis: lang},
	}, nil)
	require.NoError(t, err)

	var order []models.Category
	for _, o := range report.Outcomes {
		order = append(order, o.Category)
	}
	assert.Equal(t, models.AllCategories(), order)
	assert.Equal(t, 6.0, report.OverallScore)
	assert.Len(t, report.Failed(), 3)
	assert.Less(t, strings.Index(report.Markdown, "## Programming Language"), strings.Index(report.Markdown, "## Database"))
	assert.Contains(t, report.Markdown, "Failed: System Architecture, Infrastructure, DevSecOps / Governance.")
}

func TestConsolidate_Synthesis(t *testing.T) {
	table := models.NewCategoryTable(map[models.Category][]string{models.CategoryLanguage: {"Java 8"}})
	outcomes := []models.AnalysisOutcome{{
		Category: models.CategoryLanguage,
		Analysis: &models.CategoryAnalysis{Category: models.CategoryLanguage, Narrative: "old", Score: 3},
	}}

	t.Run("summary prepended", func(t *testing.T) {
		fake := textgentest.New().Reply("synthesize", "Upgrade Java first.")
		report, err := New(fake, Config{Synthesize: true}).Consolidate(context.Background(), table, outcomes, nil)
		require.NoError(t, err)
		assert.Equal(t, "Upgrade Java first.", report.Summary)
		assert.True(t, strings.HasPrefix(report.Markdown, "# Modernization Report\n\n## Executive Summary\n\nUpgrade Java first."))
		assert.Contains(t, fake.Calls()[0].Input, "## Programming Language (score 3.0/10)")
	})

	t.Run("failure falls back", func(t *testing.T) {
		fake := textgentest.New().Fail("synthesize", errors.New("quota"))
		report, err := New(fake, Config{Synthesize: true}).Consolidate(context.Background(), table, outcomes, nil)
		require.NoError(t, err)
		assert.Empty(t, report.Summary)
		assert.NotContains(t, report.Markdown, "Executive Summary")
		assert.Contains(t, report.Markdown, "Overall score: 3.0/10")
	})

	t.Run("disabled makes no call", func(t *testing.T) {
		fake := textgentest.New()
		_, err := New(fake, Config{}).Consolidate(context.Background(), table, outcomes, nil)
		require.NoError(t, err)
		assert.Empty(t, fake.Calls())
	})
}
