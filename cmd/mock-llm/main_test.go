package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/civicdraft/llm"
	_ "github.com/c360studio/civicdraft/llm/providers"
	"github.com/c360studio/civicdraft/model"
	"github.com/c360studio/civicdraft/search"
	"github.com/c360studio/civicdraft/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func complete(t *testing.T, url, model string) (int, chatResponse) {
	t.Helper()
	body := `{"model":"` + model + `","messages":[{"role":"user","content":"hello there"}]}`
	resp, err := http.Post(url+"/v1/chat/completions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out chatResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestLoadFixtures(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-research.2.json", `"NEEDS_MORE_RESEARCH: zoning precedent"`)
	writeFixture(t, dir, "mock-research.1.json", `{"topics": ["a"], "search_queries": ["b"]}`)
	writeFixture(t, dir, "mock-research.json", `"SUFFICIENT"`)
	writeFixture(t, dir, "mock-routing.10.json", `"NEEDS_ZONING"`)
	writeFixture(t, dir, "notes.txt", "ignored")

	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		`{"topics": ["a"], "search_queries": ["b"]}`,
		"NEEDS_MORE_RESEARCH: zoning precedent",
		"SUFFICIENT",
	}, fixtures["mock-research"])
	assert.Equal(t, []string{"NEEDS_ZONING"}, fixtures["mock-routing"])
	assert.Len(t, fixtures, 2)
}

func TestLoadFixturesErrors(t *testing.T) {
	_, err := loadFixtures(t.TempDir())
	assert.ErrorContains(t, err, "no fixture files")

	dir := t.TempDir()
	writeFixture(t, dir, "mock-fast.json", `not json`)
	_, err = loadFixtures(dir)
	assert.ErrorContains(t, err, "invalid JSON")

	_, err = loadFixtures(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSequentialFixtures(t *testing.T) {
	srv := httptest.NewServer(newServer(map[string][]string{
		"mock-writing": {"policies", "proposal"},
	}, nil).routes())
	defer srv.Close()

	var got []string
	for range 3 {
		status, resp := complete(t, srv.URL, "mock-writing")
		require.Equal(t, http.StatusOK, status)
		require.Len(t, resp.Choices, 1)
		assert.Equal(t, "stop", resp.Choices[0].FinishReason)
		got = append(got, resp.Choices[0].Message.Content)
	}
	assert.Equal(t, []string{"policies", "proposal", "proposal"}, got)
}

func TestUnknownModelAndPrefix(t *testing.T) {
	srv := httptest.NewServer(newServer(map[string][]string{"fast": {"public parks"}}, nil).routes())
	defer srv.Close()

	status, resp := complete(t, srv.URL, "mock-fast")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "public parks", resp.Choices[0].Message.Content)
	assert.Equal(t, "mock-fast", resp.Model)

	status, _ = complete(t, srv.URL, "gpt-4o")
	assert.Equal(t, http.StatusNotFound, status)

	r, err := http.Get(srv.URL + "/v1/chat/completions")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestStatsAndRequests(t *testing.T) {
	srv := httptest.NewServer(newServer(map[string][]string{
		"mock-routing": {"NEEDS_ZONING"},
		"mock-fast":    {"parks"},
	}, nil).routes())
	defer srv.Close()

	complete(t, srv.URL, "mock-routing")
	complete(t, srv.URL, "mock-routing")
	complete(t, srv.URL, "mock-fast")

	r, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	var stats struct {
		Total   int            `json:"total_calls"`
		ByModel map[string]int `json:"calls_by_model"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&stats))
	r.Body.Close()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"mock-routing": 2, "mock-fast": 1}, stats.ByModel)

	r, err = http.Get(srv.URL + "/requests?model=mock-routing&call=2")
	require.NoError(t, err)
	var captured struct {
		ByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
	r.Body.Close()
	require.Len(t, captured.ByModel, 1)
	require.Len(t, captured.ByModel["mock-routing"], 1)
	req := captured.ByModel["mock-routing"][0]
	assert.Equal(t, 2, req.CallIndex)
	assert.Equal(t, "hello there", req.Messages[0].Content)
}

type staticSearch struct{}

func (staticSearch) Search(_ context.Context, query string) (*search.Response, error) {
	return &search.Response{
		Query:  query,
		Answer: "Shelter occupancy is above 95%.",
		Results: []search.Result{
			{Title: "Shelter data", URL: "https://www.toronto.ca/shelter-data", Content: "Occupancy report"},
		},
	}, nil
}

// The shipped fixtures and registry drive a full location run through the
// real LLM client.
func TestShippedFixturesDriveWorkflow(t *testing.T) {
	fixtures, err := loadFixtures("testdata/fixtures")
	require.NoError(t, err)
	srv := httptest.NewServer(newServer(fixtures, nil).routes())
	defer srv.Close()

	reg, err := model.LoadFromFile("testdata/registry.json")
	require.NoError(t, err)
	for _, name := range reg.ListEndpoints() {
		_, ok := fixtures[name]
		require.True(t, ok, "endpoint %s has no fixtures", name)
		ep := reg.GetEndpoint(name)
		ep.URL = srv.URL + "/v1"
		reg.SetEndpoint(name, ep)
	}

	engine, err := workflow.New(workflow.Deps{
		LLM:    llm.NewClient(reg),
		Search: staticSearch{},
	})
	require.NoError(t, err)

	res, err := engine.Execute(context.Background(), &workflow.State{
		Location:        "Niagara",
		Coordinates:     &workflow.Coordinates{Lat: 43.6423, Lon: -79.4085},
		Summary:         "People are sleeping in the park overnight",
		SolutionOutline: "Open an overnight respite site",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"determine_research_path",
		"check_zoning",
		"get_policies",
		"find_pois",
		"rank_pois",
		"create_research_plan",
		"conduct_research",
		"evaluate_research",
		"write_proposal",
	}, res.Path)

	st := res.State
	require.NotNil(t, st.ZoningPolicies)
	assert.Contains(t, st.ZoningPolicies.Policies, "Open Space Recreation")
	assert.Len(t, st.ResearchPlan.SearchQueries, 3)
	assert.Len(t, st.ResearchResults, 3)
	require.NotNil(t, st.Proposal)
	assert.True(t, strings.HasPrefix(st.Proposal.Proposal, "# Proposal"))
}
