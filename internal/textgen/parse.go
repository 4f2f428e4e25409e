package textgen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseKind tells which layer of the parse strategy succeeded.
type ParseKind int

const (
	// Unparseable means neither the schema nor a generic object could be read.
	Unparseable ParseKind = iota
	// SchemaMatch means the response decoded strictly into the target type.
	SchemaMatch
	// RawObjectMatch means only a generic JSON object could be decoded.
	RawObjectMatch
)

// String returns a human-readable representation of the parse kind.
func (k ParseKind) String() string {
	switch k {
	case SchemaMatch:
		return "schema_match"
	case RawObjectMatch:
		return "raw_object_match"
	default:
		return "unparseable"
	}
}

// ParseAttempt is the outcome of Parse. Value is set for SchemaMatch,
// Object for RawObjectMatch, and Err explains why the stricter layers failed.
type ParseAttempt[T any] struct {
	Kind   ParseKind
	Value  T
	Object map[string]any
	Err    error
}

// Parse runs the layered strategy over a raw response:
// strict decode into T (optionally validated), then a generic object, then failure.
func Parse[T any](raw string, validate func(T) error) ParseAttempt[T] {
	var attempt ParseAttempt[T]

	jsonText, err := ExtractJSON(raw)
	if err != nil {
		attempt.Err = err
		return attempt
	}

	var value T
	dec := json.NewDecoder(strings.NewReader(jsonText))
	dec.DisallowUnknownFields()
	schemaErr := dec.Decode(&value)
	if schemaErr == nil && validate != nil {
		schemaErr = validate(value)
	}
	if schemaErr == nil {
		attempt.Kind = SchemaMatch
		attempt.Value = value
		return attempt
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err == nil && obj != nil {
		attempt.Kind = RawObjectMatch
		attempt.Object = obj
		attempt.Err = fmt.Errorf("schema mismatch: %w", schemaErr)
		return attempt
	}

	attempt.Err = fmt.Errorf("decode JSON: %w (response: %s)", schemaErr, truncate(jsonText, 200))
	return attempt
}

// ExtractJSON finds the JSON object embedded in a model response.
// It tolerates code fences, leading prose and JSON that was encoded as a string.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrNoJSON
	}

	// A JSON string wrapping the object, as some providers return.
	if strings.HasPrefix(text, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(text), &inner); err == nil {
			text = strings.TrimSpace(inner)
		}
	}

	text = stripFences(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w: %s", ErrNoJSON, truncate(raw, 200))
	}

	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", fmt.Errorf("%w: invalid JSON: %s", ErrNoJSON, truncate(candidate, 200))
	}
	return candidate, nil
}

func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	start := strings.Index(text, "```")
	rest := text[start+3:]
	// Skip an optional language tag on the opening fence.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// StringField reads the first non-empty string value among keys.
// Lookup is case-insensitive so "Agent" and "agent" both match.
func StringField(obj map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		for k, v := range obj {
			if !strings.EqualFold(k, key) {
				continue
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s, true
			}
		}
	}
	return "", false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
