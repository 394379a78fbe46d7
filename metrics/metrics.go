// Package metrics exports workflow and LLM metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/c360studio/civicdraft/llm"
	"github.com/c360studio/civicdraft/workflow"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "civicdraft"

// Run and stage outcome labels.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusExhausted = "exhausted"
)

// Recorder holds the collectors. It implements workflow.Observer and
// llm.CallRecorder.
type Recorder struct {
	stageDuration   *prometheus.HistogramVec
	stageExecutions *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runsActive      prometheus.Gauge
	runSteps        prometheus.Histogram
	llmRequests     *prometheus.CounterVec
	llmDuration     *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
	degradations    *prometheus.CounterVec
}

var (
	_ workflow.Observer = (*Recorder)(nil)
	_ llm.CallRecorder  = (*Recorder)(nil)
)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Histogram of workflow stage duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		stageExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_executions_total",
				Help:      "Total number of stage executions",
			},
			[]string{"stage", "status"}, // status: success, error
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_runs_total",
				Help:      "Total number of finished workflow runs",
			},
			[]string{"status"}, // status: success, error, exhausted
		),
		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workflow_runs_active",
				Help:      "Number of workflow runs in progress",
			},
		),
		runSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_steps",
				Help:      "Histogram of stages executed per run",
				Buckets:   []float64{2, 4, 6, 8, 10, 15, 20, 30, 40, 50},
			},
		),
		llmRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of language model calls",
			},
			[]string{"capability", "status"},
		),
		llmDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of language model calls in seconds, retries included",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"capability"},
		),
		llmTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Total tokens consumed by language model calls",
			},
			[]string{"model", "type"}, // type: prompt, completion
		),
		degradations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degradations_total",
				Help:      "Total number of degraded stage outcomes in finished runs",
			},
			[]string{"stage"},
		),
	}

	for _, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.stageDuration,
		r.stageExecutions,
		r.runsTotal,
		r.runsActive,
		r.runSteps,
		r.llmRequests,
		r.llmDuration,
		r.llmTokens,
		r.degradations,
	}
}

// RunStarted implements workflow.Observer.
func (r *Recorder) RunStarted(string) {
	r.runsActive.Inc()
}

// StageFinished implements workflow.Observer.
func (r *Recorder) StageFinished(_ string, stage string, d time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	r.stageExecutions.WithLabelValues(stage, outcome(err)).Inc()
}

// RunFinished implements workflow.Observer.
func (r *Recorder) RunFinished(_ string, steps int, state *workflow.State, err error) {
	r.runsActive.Dec()
	r.runSteps.Observe(float64(steps))

	status := outcome(err)
	if errors.Is(err, workflow.ErrWorkflowExhausted) {
		status = StatusExhausted
	}
	r.runsTotal.WithLabelValues(status).Inc()

	if state == nil {
		return
	}
	for _, d := range state.Degradations {
		r.degradations.WithLabelValues(d.Stage).Inc()
	}
}

// RecordCall implements llm.CallRecorder.
func (r *Recorder) RecordCall(_ context.Context, rec *llm.CallRecord) {
	status := StatusSuccess
	if rec.Failed() {
		status = StatusError
	}
	r.llmRequests.WithLabelValues(rec.Capability, status).Inc()
	r.llmDuration.WithLabelValues(rec.Capability).Observe(float64(rec.DurationMs) / 1000)

	if rec.Failed() {
		return
	}
	if rec.Usage.PromptTokens > 0 {
		r.llmTokens.WithLabelValues(rec.Model, "prompt").Add(float64(rec.Usage.PromptTokens))
	}
	if rec.Usage.CompletionTokens > 0 {
		r.llmTokens.WithLabelValues(rec.Model, "completion").Add(float64(rec.Usage.CompletionTokens))
	}
}

func outcome(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
