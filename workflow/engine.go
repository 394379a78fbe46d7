package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/civicdraft/progress"
	"github.com/google/uuid"
)

// DefaultMaxSteps caps stage executions per run.
const DefaultMaxSteps = 50

// Observer is told about run and stage lifecycle. Implementations must be
// safe for concurrent use and must not block.
type Observer interface {
	RunStarted(runID string)
	StageFinished(runID, stage string, d time.Duration, err error)
	RunFinished(runID string, steps int, state *State, err error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxSteps sets the step cap. Values below 1 keep the default.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithProgress reports the run start to r under the context's session.
func WithProgress(r progress.Reporter) EngineOption {
	return func(e *Engine) {
		e.progress = r
	}
}

// Engine runs a compiled graph. It holds no per-run state and is safe for
// concurrent Run calls as long as the stage functions are.
type Engine struct {
	graph     *Graph
	maxSteps  int
	logger    *slog.Logger
	observers []Observer
	progress  progress.Reporter
}

func newEngine(g *Graph, opts ...EngineOption) *Engine {
	e := &Engine{
		graph:    g,
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxSteps returns the step cap.
func (e *Engine) MaxSteps() int {
	return e.maxSteps
}

// Result describes a finished run.
type Result struct {
	RunID string
	Steps int
	Path  []string
	State *State
}

// Run executes the graph from the entry stage until End. Stages run one at
// a time. On failure the returned state is the partial state.
func (e *Engine) Run(ctx context.Context, state *State) (*State, error) {
	res, err := e.Execute(ctx, state)
	return res.State, err
}

// Execute is Run with the run id, step count and visited path.
func (e *Engine) Execute(ctx context.Context, state *State) (*Result, error) {
	res := &Result{RunID: uuid.New().String(), State: state}
	if state == nil {
		return res, fmt.Errorf("state is required")
	}

	logger := e.logger.With("run_id", res.RunID)
	for _, o := range e.observers {
		o.RunStarted(res.RunID)
	}
	if e.progress != nil {
		e.progress.Report(ctx, SessionFromContext(ctx), progress.Init(ActionStart))
	}

	err := e.loop(ctx, res, logger)

	for _, o := range e.observers {
		o.RunFinished(res.RunID, res.Steps, state, err)
	}
	if err != nil {
		logger.Warn("Workflow run failed", "steps", res.Steps, "error", err)
	} else {
		logger.Info("Workflow run complete", "steps", res.Steps)
	}
	return res, err
}

func (e *Engine) loop(ctx context.Context, res *Result, logger *slog.Logger) error {
	state := res.State
	current := e.graph.entry

	for current != End {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.Steps >= e.maxSteps {
			return &ExhaustedError{Steps: res.Steps, LastStage: lastOf(res.Path), State: state}
		}
		res.Steps++
		res.Path = append(res.Path, current)

		fn := e.graph.stages[current]
		before := len(state.ResearchResults)
		state.NextAction = ""

		logger.Debug("Running stage", "stage", current, "step", res.Steps)
		start := time.Now()
		err := fn(ctx, state)
		e.stageFinished(res.RunID, current, time.Since(start), err)
		if err != nil {
			return &StageError{Stage: current, Err: err}
		}

		if state.NextAction == "" {
			return &StageError{Stage: current, Err: ErrMissingNextAction}
		}
		if len(state.ResearchResults) < before {
			return &StageError{Stage: current, Err: ErrResearchShrank}
		}

		next, err := e.next(current, state.NextAction)
		if err != nil {
			return err
		}
		logger.Debug("Stage routed", "stage", current, "next_action", state.NextAction, "next", next)
		current = next
	}
	return nil
}

// next resolves the stage after from. An unconditional edge wins over
// whatever the stage put in next_action.
func (e *Engine) next(from, action string) (string, error) {
	if to, ok := e.graph.edges[from]; ok {
		return to, nil
	}
	routes, ok := e.graph.conditional[from]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoEdge, from)
	}
	to, ok := routes[action]
	if !ok {
		return "", &RouteError{Stage: from, NextAction: action}
	}
	return to, nil
}

func (e *Engine) stageFinished(runID, stage string, d time.Duration, err error) {
	for _, o := range e.observers {
		o.StageFinished(runID, stage, d, err)
	}
}

func lastOf(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}
