// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// Dedupe removes duplicates and empty strings from a slice using exact
// comparison. Order of first occurrence is preserved and the result is never
// nil, so it always encodes as a JSON array.
//
// Example:
//
//	Dedupe([]string{"a@x.com", "", "b@x.com", "a@x.com", "A@x.com"})
//	// Returns: []string{"a@x.com", "b@x.com", "A@x.com"}
func Dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}

	return result
}

// IsBlank reports whether s is empty or whitespace only.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Present returns s when it carries a value and "" when it is blank.
// The value itself is returned untrimmed.
func Present(s string) string {
	if IsBlank(s) {
		return ""
	}
	return s
}
