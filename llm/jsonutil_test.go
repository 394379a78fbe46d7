package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
	}{
		{
			name:    "plain object",
			input:   `{"topics": ["traffic calming"]}`,
			wantKey: "topics",
		},
		{
			name:    "fenced block with trailing prose",
			input:   "```json\n{\"topics\": [\"parks\"]}\n```\n\nThese topics cover the complaint.",
			wantKey: "topics",
		},
		{
			name:    "comments and trailing commas",
			input:   "```json\n{\n  \"search_queries\": [\n    \"Toronto bike lane bylaw\",  // primary\n    \"Toronto cycling network plan\",\n  ]\n}\n```",
			wantKey: "search_queries",
		},
		{
			name:    "URL in string not stripped",
			input:   `{"source": "https://www.toronto.ca/zoning/"} // note`,
			wantKey: "source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSON(tt.input)
			if result == "" {
				t.Fatal("expected JSON result, got empty string")
			}

			var parsed map[string]any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("result is not valid JSON: %v\nresult: %s", err, result)
			}
			if _, ok := parsed[tt.wantKey]; !ok {
				t.Errorf("expected key %q in %s", tt.wantKey, result)
			}
		})
	}
}

func TestExtractJSONNoDocument(t *testing.T) {
	for _, input := range []string{"", "NEEDS_WEB_RESEARCH", "no braces here"} {
		if got := ExtractJSON(input); got != "" {
			t.Errorf("ExtractJSON(%q) = %q, want empty", input, got)
		}
		if got := ExtractJSONArray(input); got != "" {
			t.Errorf("ExtractJSONArray(%q) = %q, want empty", input, got)
		}
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{"plain array", `["one", "two", "three"]`, 3},
		{"fenced array", "Here are the queries:\n```json\n[\"one\", \"two\"]\n```", 2},
		{"array with comments", "```\n[\n  \"one\",  // first\n  \"two\",\n]\n```", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSONArray(tt.input)
			var parsed []string
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("result is not a JSON array: %v\nresult: %s", err, result)
			}
			if len(parsed) != tt.wantLen {
				t.Errorf("expected %d items, got %d", tt.wantLen, len(parsed))
			}
		})
	}
}

func TestStripLineComment(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`  "key": "value",`, `  "key": "value",`},
		{`  "key": "value",  // a comment`, `  "key": "value",`},
		{`  "url": "http://example.com",`, `  "url": "http://example.com",`},
		{`  // whole line`, ``},
		{`  "path": "a\"b//c",  // comment`, `  "path": "a\"b//c",`},
	}

	for _, tt := range tests {
		if got := stripLineComment(tt.input); got != tt.expected {
			t.Errorf("stripLineComment(%q)\ngot:  %q\nwant: %q", tt.input, got, tt.expected)
		}
	}
}
