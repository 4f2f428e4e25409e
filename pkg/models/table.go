package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TableRow is one line of a CategoryTable.
type TableRow struct {
	Category  Category `json:"category"`
	Artefacts []string `json:"artefacts"`
}

// Empty reports whether the row has no artefacts.
func (r TableRow) Empty() bool {
	return len(r.Artefacts) == 0
}

// Cell returns the artefact column as rendered in the table.
func (r TableRow) Cell() string {
	if r.Empty() {
		return NoneMarker
	}
	return strings.Join(r.Artefacts, ", ")
}

// CategoryTable holds exactly one row per category in the fixed order.
// Build it with NewCategoryTable; the zero value has no rows.
type CategoryTable struct {
	rows [CategoryCount]TableRow
}

// NewCategoryTable builds a table from a category -> artefacts mapping.
// Categories missing from the map get an empty row. Unknown categories are ignored.
func NewCategoryTable(artefacts map[Category][]string) CategoryTable {
	var t CategoryTable
	for i, c := range categoryOrder {
		list := artefacts[c]
		cp := make([]string, len(list))
		copy(cp, list)
		t.rows[i] = TableRow{Category: c, Artefacts: cp}
	}
	return t
}

// Rows returns a copy of the rows in the fixed order.
func (t CategoryTable) Rows() []TableRow {
	out := make([]TableRow, len(t.rows))
	for i, r := range t.rows {
		cp := make([]string, len(r.Artefacts))
		copy(cp, r.Artefacts)
		out[i] = TableRow{Category: r.Category, Artefacts: cp}
	}
	return out
}

// Row returns the row for a category.
func (t CategoryTable) Row(c Category) (TableRow, bool) {
	idx := c.Index()
	if idx < 0 {
		return TableRow{}, false
	}
	return t.rows[idx], true
}

// Artefacts returns every artefact in the table, in row order.
func (t CategoryTable) Artefacts() []string {
	var out []string
	for _, r := range t.rows {
		out = append(out, r.Artefacts...)
	}
	return out
}

// IsEmpty reports whether every row is empty.
func (t CategoryTable) IsEmpty() bool {
	for _, r := range t.rows {
		if !r.Empty() {
			return false
		}
	}
	return true
}

// Markdown renders the table with single newlines between rows.
func (t CategoryTable) Markdown() string {
	catWidth := len("Category")
	cellWidth := len("Artefacts")
	for _, r := range t.rows {
		catWidth = max(catWidth, len(r.Category))
		cellWidth = max(cellWidth, len(r.Cell()))
	}

	lines := make([]string, 0, len(t.rows)+2)
	lines = append(lines,
		fmt.Sprintf("| %-*s | %-*s |", catWidth, "Category", cellWidth, "Artefacts"),
		fmt.Sprintf("|%s|%s|", strings.Repeat("-", catWidth+2), strings.Repeat("-", cellWidth+2)),
	)
	for _, r := range t.rows {
		lines = append(lines, fmt.Sprintf("| %-*s | %-*s |", catWidth, r.Category, cellWidth, r.Cell()))
	}
	return strings.Join(lines, "\n")
}

// MarshalJSON encodes the table as its ordered rows.
func (t CategoryTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Rows())
}
