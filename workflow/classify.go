package workflow

import "strings"

// MatchMode controls how Classify compares markers.
type MatchMode int

const (
	// CaseSensitive matches a marker as an exact substring.
	CaseSensitive MatchMode = iota
	// CaseInsensitive lowercases both sides before matching.
	CaseInsensitive
)

// Routing markers emitted by the model. Any other answer takes the
// default route of the deciding stage.
const (
	MarkerNeedsZoning       = "NEEDS_ZONING"
	MarkerNeedsMoreResearch = "needs_more_research"
)

// Classify returns the first marker, in argument order, that occurs in
// text as a substring, and whether any matched. All marker routing goes
// through here.
func Classify(text string, mode MatchMode, markers ...string) (string, bool) {
	haystack := text
	if mode == CaseInsensitive {
		haystack = strings.ToLower(text)
	}
	for _, m := range markers {
		needle := m
		if mode == CaseInsensitive {
			needle = strings.ToLower(m)
		}
		if needle != "" && strings.Contains(haystack, needle) {
			return m, true
		}
	}
	return "", false
}
