package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/c360studio/civicdraft/llm"
	"github.com/c360studio/civicdraft/llm/testutil"
	"github.com/c360studio/civicdraft/places"
	"github.com/c360studio/civicdraft/progress"
	"github.com/c360studio/civicdraft/search"
	"github.com/c360studio/civicdraft/zoning"
	"github.com/stretchr/testify/require"
)

// Prompt kinds, recognised by a phrase only that prompt contains.
const (
	kindPath     = "path"
	kindPolicy   = "policy"
	kindPOIQuery = "poi_query"
	kindRank     = "rank"
	kindPlan     = "plan"
	kindEvaluate = "evaluate"
	kindWebQuery = "web_query"
	kindWebEval  = "web_eval"
	kindProposal = "proposal"
)

var kindMarkers = []struct{ kind, phrase string }{
	{kindPath, "NEEDS_WEB_RESEARCH"},
	{kindPolicy, "zoning policy researcher"},
	{kindPOIQuery, "ONE general search query"},
	{kindRank, "zoning expert"},
	{kindPlan, "research planner"},
	{kindEvaluate, "for a strong proposal"},
	{kindWebQuery, "Respond with a JSON array"},
	{kindWebEval, "to write a proposal"},
	{kindProposal, "proposal writer"},
}

func kindOf(prompt string) string {
	for _, m := range kindMarkers {
		if strings.Contains(prompt, m.phrase) {
			return m.kind
		}
	}
	return ""
}

// script maps a prompt kind to its replies in call order. The last reply
// repeats once the list is used up.
type script map[string][]string

func scripted(s script) *testutil.MockGenerator {
	used := make(map[string]int)
	return &testutil.MockGenerator{
		Match: func(req llm.GenerateRequest) (string, bool) {
			kind := kindOf(req.Prompt)
			replies, ok := s[kind]
			if !ok || len(replies) == 0 {
				return "", false
			}
			i := min(used[kind], len(replies)-1)
			used[kind]++
			return replies[i], true
		},
		Default: "ok",
	}
}

func countKind(gen *testutil.MockGenerator, kind string) int {
	n := 0
	for _, r := range gen.Requests() {
		if kindOf(r.Prompt) == kind {
			n++
		}
	}
	return n
}

// happyScript answers every prompt so that both paths finish.
func happyScript() script {
	return script{
		kindPath:     {"NEEDS_ZONING"},
		kindPolicy:   {"Mixed commercial and residential uses are permitted."},
		kindPOIQuery: {`"public parks"`},
		kindRank:     {"1. Trinity Bellwoods Park: large open space"},
		kindPlan:     {`{"topics": ["shelter capacity", "housing costs"], "search_queries": ["Toronto shelter occupancy", "Niagara neighbourhood rent"]}`},
		kindEvaluate: {"COMPLETE"},
		kindWebQuery: {`["bike lane education Toronto", "cycling safety campaigns", "bike education costs"]`},
		kindWebEval:  {"COMPLETE"},
		kindProposal: {"# Proposal\n\nExecutive Summary..."},
	}
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (f *fakeSearch) Search(_ context.Context, q string) (*search.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, q)
	n := len(f.queries)
	return &search.Response{
		Query:  q,
		Answer: "answer " + q,
		Results: []search.Result{
			{Title: "Result " + q, URL: fmt.Sprintf("https://example.org/%d", n), Content: "snippet"},
		},
	}, nil
}

func (f *fakeSearch) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakePlaces struct {
	pois  []places.POI
	err   error
	query places.Query
	calls int
}

func (f *fakePlaces) Search(_ context.Context, q places.Query) ([]places.POI, error) {
	f.calls++
	f.query = q
	return f.pois, f.err
}

type fakeGeocoder struct {
	ll      places.LatLon
	err     error
	address string
}

func (f *fakeGeocoder) Geocode(_ context.Context, address string) (places.LatLon, error) {
	f.address = address
	return f.ll, f.err
}

type fakeBylaw struct {
	text    string
	err     error
	section string
}

func (f *fakeBylaw) Fetch(_ context.Context, section string) (string, error) {
	f.section = section
	return f.text, f.err
}

type progressLog struct {
	mu     sync.Mutex
	events []progress.Event
	ids    []string
}

func (p *progressLog) Report(_ context.Context, sessionID string, ev progress.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	p.ids = append(p.ids, sessionID)
}

func (p *progressLog) actions(status string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ev.Status == status && ev.Type == progress.TypeUpdate {
			out = append(out, ev.Action)
		}
	}
	return out
}

func parkPOIs() []places.POI {
	return []places.POI{
		{Name: "Trinity Bellwoods Park", Address: "790 Queen St W", Coordinates: &places.LatLon{Lat: 43.6472, Lon: -79.4136}, Categories: []string{"park"}},
		{Name: "Nowhere Plaza", Address: "Unknown"},
		{Name: "Stanley Park", Address: "Wellington St W", Coordinates: &places.LatLon{Lat: 43.6418, Lon: -79.4058}, Categories: []string{"park"}},
	}
}

type testEnv struct {
	gen      *testutil.MockGenerator
	search   *fakeSearch
	places   *fakePlaces
	geocoder *fakeGeocoder
	bylaw    *fakeBylaw
	progress *progressLog
	deps     Deps
}

func newEnv(s script) *testEnv {
	env := &testEnv{
		gen:      scripted(s),
		search:   &fakeSearch{},
		places:   &fakePlaces{pois: parkPOIs()},
		geocoder: &fakeGeocoder{ll: places.LatLon{Lat: 43.64, Lon: -79.40}},
		bylaw:    &fakeBylaw{text: "40.10.20.10 Permitted Use: Dwelling unit, Park, Community centre"},
		progress: &progressLog{},
	}
	env.deps = Deps{
		LLM:      env.gen,
		Search:   env.search,
		Zoning:   zoning.Static(zoning.Zone{ZoneType: "OR", BylawChapter: "90", BylawSection: "90.20"}),
		Bylaw:    env.bylaw,
		Places:   env.places,
		Geocoder: env.geocoder,
		Progress: env.progress,
	}
	return env
}

func (env *testEnv) stages(t testing.TB) *Stages {
	s, err := NewStages(env.deps)
	require.NoError(t, err)
	return s
}

func (env *testEnv) engine(t testing.TB, opts ...EngineOption) *Engine {
	e, err := New(env.deps, opts...)
	require.NoError(t, err)
	return e
}
