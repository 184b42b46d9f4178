// Package textutil holds small text normalisation helpers shared by services and handlers.
package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Clean trims surrounding whitespace and composes the string to NFC so visually identical
// Ethiopic and Latin input compares equal.
func Clean(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return norm.NFC.String(value)
}

// Fold returns the case-folded, NFC-normalised form of value for identifier comparison.
func Fold(value string) string {
	value = Clean(value)
	if value == "" {
		return ""
	}
	return cases.Fold().String(value)
}

// EqualFold reports whether a and b are non-empty and equal after trimming and case folding.
func EqualFold(a, b string) bool {
	fa := Fold(a)
	if fa == "" {
		return false
	}
	return fa == Fold(b)
}

// Fields splits value on runs of Unicode whitespace.
func Fields(value string) []string {
	return strings.Fields(value)
}

// NormalizeFields trims keys and string values, removing entries with empty keys.
func NormalizeFields(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]any, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		result[trimmedKey] = value
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
