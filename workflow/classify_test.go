package workflow

import (
	"errors"
	"testing"

	"github.com/c360studio/civicdraft/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		mode    MatchMode
		markers []string
		want    string
		ok      bool
	}{
		{"exact marker", "NEEDS_ZONING", CaseSensitive, []string{MarkerNeedsZoning}, MarkerNeedsZoning, true},
		{"substring in prose", `I think this "NEEDS_ZONING" because it is a site.`, CaseSensitive, []string{MarkerNeedsZoning}, MarkerNeedsZoning, true},
		{"case sensitive miss", "needs_zoning", CaseSensitive, []string{MarkerNeedsZoning}, "", false},
		{"web research", "NEEDS_WEB_RESEARCH", CaseSensitive, []string{MarkerNeedsZoning}, "", false},
		{"case insensitive hit", "NEEDS_MORE_RESEARCH: no cost data", CaseInsensitive, []string{MarkerNeedsMoreResearch}, MarkerNeedsMoreResearch, true},
		{"mixed case", "Needs_More_Research", CaseInsensitive, []string{MarkerNeedsMoreResearch}, MarkerNeedsMoreResearch, true},
		{"complete", "COMPLETE", CaseInsensitive, []string{MarkerNeedsMoreResearch}, "", false},
		{"first marker wins", "needs_more_research, then NEEDS_ZONING", CaseInsensitive, []string{MarkerNeedsZoning, MarkerNeedsMoreResearch}, MarkerNeedsZoning, true},
		{"empty marker ignored", "anything", CaseSensitive, []string{""}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.text, tt.mode, tt.markers...)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStructured(t *testing.T) {
	fallback := FallbackPlan("Niagara")

	t.Run("fenced with trailing comma", func(t *testing.T) {
		text := "Here you go:\n```json\n{\"topics\": [\"shelter capacity\"], \"search_queries\": [\"Toronto shelter occupancy 2024\",]}\n```"
		plan, reason := ParseStructured(text, llm.ExtractJSON, validPlan, fallback)
		require.Nil(t, reason)
		assert.Equal(t, []string{"Toronto shelter occupancy 2024"}, plan.SearchQueries)
	})

	t.Run("no json", func(t *testing.T) {
		plan, reason := ParseStructured("I cannot help with that.", llm.ExtractJSON, validPlan, fallback)
		require.NotNil(t, reason)
		assert.ErrorIs(t, reason, ErrNoJSON)
		assert.Equal(t, fallback, plan)
	})

	t.Run("malformed", func(t *testing.T) {
		plan, reason := ParseStructured(`{"topics": ["a"], "search_queries": [unquoted]}`, llm.ExtractJSON, validPlan, fallback)
		require.NotNil(t, reason)
		assert.Contains(t, reason.Error(), "decode")
		assert.Equal(t, fallback, plan)
	})

	t.Run("fails validation", func(t *testing.T) {
		plan, reason := ParseStructured(`{"topics": ["a"], "search_queries": []}`, llm.ExtractJSON, validPlan, fallback)
		require.NotNil(t, reason)
		assert.Equal(t, fallback, plan)
	})

	t.Run("array", func(t *testing.T) {
		q, reason := ParseStructured(`["a", "b", "c"]`, llm.ExtractJSONArray, validQueries, []string{"x"})
		require.Nil(t, reason)
		assert.Equal(t, []string{"a", "b", "c"}, q)
	})

	t.Run("nil validator", func(t *testing.T) {
		v, reason := ParseStructured(`{"n": 2}`, llm.ExtractJSON, nil, map[string]int{})
		require.Nil(t, reason)
		assert.Equal(t, 2, v["n"])
	})

	t.Run("reason unwraps", func(t *testing.T) {
		r := &FallbackReason{Err: ErrNoJSON}
		assert.True(t, errors.Is(r, ErrNoJSON))
	})
}
