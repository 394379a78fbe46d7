package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/civicdraft/llm"
	"github.com/c360studio/civicdraft/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder(t *testing.T) (*Recorder, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	return r, reg
}

func TestNewRecorderRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)

	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestStageFinished(t *testing.T) {
	r, _ := newRecorder(t)

	r.StageFinished("run-1", workflow.StageCheckZoning, 200*time.Millisecond, nil)
	r.StageFinished("run-1", workflow.StageCheckZoning, 300*time.Millisecond, nil)
	r.StageFinished("run-1", workflow.StageConductResearch, time.Second, errors.New("search down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stageExecutions.WithLabelValues(workflow.StageCheckZoning, StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageExecutions.WithLabelValues(workflow.StageConductResearch, StatusError)))
	assert.Equal(t, 2, testutil.CollectAndCount(r.stageDuration))
}

func TestRunLifecycle(t *testing.T) {
	r, _ := newRecorder(t)

	r.RunStarted("a")
	r.RunStarted("b")
	r.RunStarted("c")
	assert.Equal(t, 3.0, testutil.ToFloat64(r.runsActive))

	st := &workflow.State{Degradations: []workflow.Degradation{
		{Stage: workflow.StageFindPOIs, Reason: "no query"},
		{Stage: workflow.StageCreateResearchPlan, Reason: "bad json"},
		{Stage: workflow.StageFindPOIs, Reason: "again"},
	}}
	r.RunFinished("a", 9, st, nil)
	r.RunFinished("b", 3, nil, &workflow.StageError{Stage: workflow.StageWriteProposal, Err: errors.New("boom")})
	r.RunFinished("c", 50, st, &workflow.ExhaustedError{Steps: 50})

	assert.Equal(t, 0.0, testutil.ToFloat64(r.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues(StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues(StatusExhausted)))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.degradations.WithLabelValues(workflow.StageFindPOIs)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.degradations.WithLabelValues(workflow.StageCreateResearchPlan)))

	expected := `
# HELP civicdraft_workflow_steps Histogram of stages executed per run
# TYPE civicdraft_workflow_steps histogram
civicdraft_workflow_steps_bucket{le="2"} 0
civicdraft_workflow_steps_bucket{le="4"} 1
civicdraft_workflow_steps_bucket{le="6"} 1
civicdraft_workflow_steps_bucket{le="8"} 1
civicdraft_workflow_steps_bucket{le="10"} 2
civicdraft_workflow_steps_bucket{le="15"} 2
civicdraft_workflow_steps_bucket{le="20"} 2
civicdraft_workflow_steps_bucket{le="30"} 2
civicdraft_workflow_steps_bucket{le="40"} 2
civicdraft_workflow_steps_bucket{le="50"} 3
civicdraft_workflow_steps_bucket{le="+Inf"} 3
civicdraft_workflow_steps_sum 62
civicdraft_workflow_steps_count 3
`
	assert.NoError(t, testutil.CollectAndCompare(r.runSteps, strings.NewReader(expected)))
}

func TestRecordCall(t *testing.T) {
	r, _ := newRecorder(t)
	ctx := context.Background()

	r.RecordCall(ctx, &llm.CallRecord{
		Capability: "writing",
		Model:      "gpt-4o",
		DurationMs: 1500,
		Usage:      llm.TokenUsage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
	})
	r.RecordCall(ctx, &llm.CallRecord{Capability: "writing", Error: "all endpoints failed"})
	r.RecordCall(ctx, &llm.CallRecord{Capability: "routing", Model: "gpt-4o"})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmRequests.WithLabelValues("writing", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmRequests.WithLabelValues("writing", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.llmRequests.WithLabelValues("routing", StatusSuccess)))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.llmTokens.WithLabelValues("gpt-4o", "prompt")))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.llmTokens.WithLabelValues("gpt-4o", "completion")))
}

func TestRecorderObservesEngine(t *testing.T) {
	r, _ := newRecorder(t)

	engine, err := workflow.NewGraph("a").
		AddStage("a", func(_ context.Context, s *workflow.State) error {
			s.Degrade("a", "fell back")
			s.NextAction = "b"
			return nil
		}).
		AddStage("b", func(_ context.Context, s *workflow.State) error {
			s.NextAction = workflow.End
			return nil
		}).
		AddEdge("a", "b").
		AddEdge("b", workflow.End).
		Compile(workflow.WithObserver(r))
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), &workflow.State{Location: "Niagara"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageExecutions.WithLabelValues("a", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageExecutions.WithLabelValues("b", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.degradations.WithLabelValues("a")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runsActive))
}

func TestExporterHandler(t *testing.T) {
	reg := NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	r.RunStarted("run-1")

	srv := httptest.NewServer(NewExporter(":0", reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "civicdraft_workflow_runs_active 1")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestExporterShutdownBeforeStart(t *testing.T) {
	e := NewExporter("127.0.0.1:0", prometheus.NewRegistry())
	assert.NoError(t, e.Shutdown(context.Background()))
}
