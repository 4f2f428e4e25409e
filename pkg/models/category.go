package models

import "strings"

// Category is one of the fixed technology buckets an artefact is filed under.
type Category string

const (
	// CategoryLanguage covers programming languages and their runtimes.
	CategoryLanguage Category = "Programming Language"
	// CategoryArchitecture covers application servers, frameworks and architectural styles.
	CategoryArchitecture Category = "System Architecture"
	// CategoryInfrastructure covers hosting, containers, proxies and cloud platforms.
	CategoryInfrastructure Category = "Infrastructure"
	// CategoryDatabase covers relational and non-relational data stores.
	CategoryDatabase Category = "Database"
	// CategoryDevSecOps covers pipelines, IaC, security tooling and governance.
	CategoryDevSecOps Category = "DevSecOps / Governance"
)

// NoneMarker is rendered in place of an empty artefact list.
const NoneMarker = "(None)"

// categoryOrder is the canonical order. Every table and report follows it.
var categoryOrder = [...]Category{
	CategoryLanguage,
	CategoryArchitecture,
	CategoryInfrastructure,
	CategoryDatabase,
	CategoryDevSecOps,
}

// AllCategories returns the categories in their fixed order.
// The returned slice is a copy and may be modified by the caller.
func AllCategories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder[:])
	return out
}

// CategoryCount is the number of categories in the closed set.
const CategoryCount = len(categoryOrder)

// Valid returns true if the category is a known value.
func (c Category) Valid() bool {
	return c.Index() >= 0
}

// Index returns the position of the category in the fixed order, or -1.
func (c Category) Index() int {
	for i, known := range categoryOrder {
		if known == c {
			return i
		}
	}
	return -1
}

// Slug returns a short identifier suitable for config keys and log fields.
func (c Category) Slug() string {
	switch c {
	case CategoryLanguage:
		return "language"
	case CategoryArchitecture:
		return "architecture"
	case CategoryInfrastructure:
		return "infrastructure"
	case CategoryDatabase:
		return "database"
	case CategoryDevSecOps:
		return "devsecops"
	default:
		return "unknown"
	}
}

// ParseCategory resolves a category from its name, slug or a common short
// form ("Architecture", "DevSecOps"), ignoring case and surrounding markup.
func ParseCategory(s string) (Category, bool) {
	key := strings.ToLower(strings.Trim(strings.TrimSpace(s), "*_`"))
	key = strings.TrimSpace(key)
	for _, c := range categoryOrder {
		if key == strings.ToLower(string(c)) || key == c.Slug() {
			return c, true
		}
	}
	switch key {
	case "architecture", "system architecture", "frameworks":
		return CategoryArchitecture, true
	case "language", "programming languages", "languages":
		return CategoryLanguage, true
	case "databases":
		return CategoryDatabase, true
	case "devsecops", "governance", "devsecops/governance", "devsecops / governance":
		return CategoryDevSecOps, true
	}
	return "", false
}

// CategoryFromSlug resolves a slug produced by Slug.
func CategoryFromSlug(slug string) (Category, bool) {
	for _, c := range categoryOrder {
		if c.Slug() == slug {
			return c, true
		}
	}
	return "", false
}
