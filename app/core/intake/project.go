package intake

import (
	"strings"
	"unicode"
)

// Canonical forms that mean "explicitly no project".
var noProjectForms = map[string]struct{}{
	"sinproyecto": {},
	"ninguno":     {},
	"na":          {},
	"none":        {},
}

// CanonicalProject normalizes a project name for equality-based fuzzy
// matching: lowercase, letters and digits only.
func CanonicalProject(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchProject resolves free-text project input against the valid option
// list. Only exact canonical matches count; with a small enumerated option
// set a near-miss should fall through to a clarification request rather
// than a guess. Returns "" for no match or an explicit "no project".
func MatchProject(raw string, options []string) string {
	candidate := CanonicalProject(raw)
	if candidate == "" {
		return ""
	}
	if _, negative := noProjectForms[candidate]; negative {
		return ""
	}

	byCanon := make(map[string]string, len(options))
	for _, opt := range options {
		byCanon[CanonicalProject(opt)] = opt
	}
	return byCanon[candidate]
}
