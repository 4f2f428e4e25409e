package artefact

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/pkg/models"
)

// CategorizationError means the categorizer answer could not be read.
type CategorizationError struct {
	Err error
}

func (e *CategorizationError) Error() string {
	return fmt.Sprintf("categorization failed: %v", e.Err)
}

func (e *CategorizationError) Unwrap() error {
	return e.Err
}

// categorizeAnswer is the structured answer requested from the service.
type categorizeAnswer struct {
	Language       []string `json:"language"`
	Architecture   []string `json:"architecture"`
	Infrastructure []string `json:"infrastructure"`
	Database       []string `json:"database"`
	DevSecOps      []string `json:"devsecops"`
}

func (a categorizeAnswer) byCategory() map[models.Category][]string {
	return map[models.Category][]string{
		models.CategoryLanguage:       a.Language,
		models.CategoryArchitecture:   a.Architecture,
		models.CategoryInfrastructure: a.Infrastructure,
		models.CategoryDatabase:       a.Database,
		models.CategoryDevSecOps:      a.DevSecOps,
	}
}

func categorizeSchema() *textgen.Schema {
	list := func(desc string) map[string]any {
		return map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": desc,
		}
	}
	return &textgen.Schema{
		Name:        "category_table",
		Description: "Every artefact goes in exactly one list. Use an empty list when a category has no artefacts.",
		Properties: map[string]any{
			"language":       list("Programming languages and runtimes, with versions as written"),
			"architecture":   list("Frameworks, application servers and architectural styles"),
			"infrastructure": list("Hosting, operating systems, containers, proxies and cloud platforms"),
			"database":       list("Relational and non-relational data stores"),
			"devsecops":      list("CI/CD, infrastructure as code, security and governance tooling"),
		},
		Required: []string{"language", "architecture", "infrastructure", "database", "devsecops"},
	}
}

// Categorize asks the service to file the artefacts mentioned in payload into
// the fixed categories. The result always has one row per category and only
// contains artefacts that appear in payload.
func (p *Pipeline) Categorize(ctx context.Context, payload string) (models.CategoryTable, error) {
	resp, err := p.svc.Invoke(ctx, textgen.Request{
		Role: "a technology artefact categorizer",
		Goal: "file every technology artefact the user mentions under exactly one category",
		Instructions: "List the technology artefacts mentioned in the input under these categories: " +
			categoryNames() + ". Copy each artefact exactly as written, including its version. " +
			"Never add artefacts that are not in the input.",
		Input:   payload,
		Schema:  categorizeSchema(),
		Purpose: "categorize",
	})
	if err != nil {
		return models.CategoryTable{}, err
	}

	raw, kind, err := decodeCategories(resp.Text)
	if err != nil {
		return models.CategoryTable{}, &CategorizationError{Err: err}
	}
	p.logger.Debug("categorization parsed", zap.Stringer("parse", kind))

	table := filterMentioned(raw, payload, p.logger)
	return table, nil
}

func categoryNames() string {
	names := make([]string, 0, models.CategoryCount)
	for _, c := range models.AllCategories() {
		names = append(names, string(c))
	}
	return strings.Join(names, "; ")
}

// decodeCategories applies the layered parse and, as a last resort, reads a
// markdown table.
func decodeCategories(text string) (map[models.Category][]string, textgen.ParseKind, error) {
	attempt := textgen.Parse[categorizeAnswer](text, nil)
	switch attempt.Kind {
	case textgen.SchemaMatch:
		return attempt.Value.byCategory(), attempt.Kind, nil
	case textgen.RawObjectMatch:
		out := make(map[models.Category][]string)
		for key, value := range attempt.Object {
			c, ok := models.ParseCategory(key)
			if !ok {
				continue
			}
			out[c] = append(out[c], stringList(value)...)
		}
		if len(out) > 0 {
			return out, attempt.Kind, nil
		}
	}

	if rows := parseMarkdownTable(text); len(rows) > 0 {
		return rows, textgen.Unparseable, nil
	}
	if attempt.Err == nil {
		attempt.Err = fmt.Errorf("no category keys in response")
	}
	return nil, textgen.Unparseable, attempt.Err
}

// stringList reads a JSON array of strings or a comma-separated string.
func stringList(v any) []string {
	switch val := v.(type) {
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitCell(val)
	default:
		return nil
	}
}

func splitCell(cell string) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, models.NoneMarker) {
		return nil
	}
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var blankLines = regexp.MustCompile(`\n(?:[ \t]*\n)+`)

// CollapseBlankLines replaces every run of blank lines with a single newline.
// It normalizes CRLF first and is idempotent.
func CollapseBlankLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return blankLines.ReplaceAllString(s, "\n")
}

// parseMarkdownTable reads "| Category | artefacts |" rows.
func parseMarkdownTable(text string) map[models.Category][]string {
	out := make(map[models.Category][]string)
	for _, line := range strings.Split(CollapseBlankLines(text), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "|") {
			continue
		}
		cells := strings.Split(strings.Trim(line, "|"), "|")
		if len(cells) < 2 {
			continue
		}
		c, ok := models.ParseCategory(cells[0])
		if !ok {
			continue
		}
		out[c] = append(out[c], splitCell(cells[1])...)
	}
	return out
}

// filterMentioned drops artefacts that do not occur in payload and
// duplicates, keeping the first category in fixed order.
func filterMentioned(raw map[models.Category][]string, payload string, logger *zap.Logger) models.CategoryTable {
	haystack := strings.ToLower(payload)
	seen := make(map[string]bool)
	kept := make(map[models.Category][]string, models.CategoryCount)

	for _, c := range models.AllCategories() {
		for _, a := range raw[c] {
			a = strings.TrimSpace(a)
			if a == "" || strings.EqualFold(a, models.NoneMarker) {
				continue
			}
			key := strings.ToLower(a)
			if !mentioned(haystack, key) {
				logger.Warn("dropping artefact not present in input",
					zap.String("artefact", a),
					zap.String("category", c.Slug()))
				continue
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			kept[c] = append(kept[c], a)
		}
	}
	return models.NewCategoryTable(kept)
}

// mentioned reports whether term occurs in text as a whole token: a match
// edge that is a letter or digit must not continue into another one, so
// "java" is not found in "javascript".
func mentioned(text, term string) bool {
	if term == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	for from := 0; from <= len(text)-len(term); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if !(isWordRune(first) && start > 0 && isWordRune(before)) &&
			!(isWordRune(last) && end < len(text) && isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
