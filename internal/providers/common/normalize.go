package common

import (
	"encoding/json"
	"strings"
)

// MaxCategories bounds category lists from providers with broad taxonomies.
const MaxCategories = 5

// JoinNames joins a multi-valued upstream field into one display string,
// dropping empty entries.
func JoinNames(values []string) string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, ", ")
}

// StringOrList decodes an upstream field that may be either a JSON string or
// an array of strings, returning the joined display form.
func StringOrList(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return strings.TrimSpace(scalar)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return JoinNames(list)
	}
	return ""
}

// CapList truncates a tag list to at most limit non-empty entries.
func CapList(values []string, limit int) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, limit)
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ExpandYearOnly widens a bare year to the canonical YYYY-01-01 form so
// downstream consumers see a uniform date shape.
func ExpandYearOnly(date string) string {
	trimmed := strings.TrimSpace(date)
	if len(trimmed) != 4 {
		return trimmed
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return trimmed
		}
	}
	return trimmed + "-01-01"
}

// DigitsOnly strips ISBN separators; returns "" when anything but digits,
// spaces or hyphens is present (trailing X check digit allowed).
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'X' || r == 'x':
			b.WriteRune('X')
		case r == '-' || r == ' ':
			continue
		default:
			return ""
		}
	}
	return b.String()
}
