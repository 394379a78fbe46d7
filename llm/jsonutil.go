package llm

import (
	"regexp"
	"strings"
)

// Patterns for pulling JSON out of model chatter. Fenced blocks are tried
// before bare documents so that prose containing braces does not win.
var (
	fencedObject  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObject    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	fencedArray   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	bareArray     = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the JSON object embedded in content, repaired for
// line comments and trailing commas, or "" when there is none.
func ExtractJSON(content string) string {
	return extract(content, fencedObject, bareObject)
}

// ExtractJSONArray is ExtractJSON for a top-level array.
func ExtractJSONArray(content string) string {
	return extract(content, fencedArray, bareArray)
}

func extract(content string, fenced, bare *regexp.Regexp) string {
	if m := fenced.FindStringSubmatch(content); len(m) > 1 {
		return repairJSON(m[1])
	}
	if m := bare.FindString(content); m != "" {
		return repairJSON(m)
	}
	return ""
}

// repairJSON strips // comments outside string literals and drops trailing
// commas before a closing bracket. Both show up regularly in model output.
func repairJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingComma.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment cuts line at the first // that sits outside a quoted string.
//
//	"url": "http://example.com" // source  ->  "url": "http://example.com"
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
