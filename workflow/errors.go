package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowExhausted is returned when a run exceeds its step cap.
	ErrWorkflowExhausted = errors.New("workflow exhausted")

	// ErrUnknownRoute is returned when next_action matches no conditional edge.
	ErrUnknownRoute = errors.New("unknown route")

	// ErrNoEdge is returned when a stage has no outgoing edge.
	ErrNoEdge = errors.New("stage has no outgoing edge")

	// ErrMissingNextAction is returned when a stage returns without routing.
	ErrMissingNextAction = errors.New("stage did not set next_action")

	// ErrResearchShrank is returned when a stage drops research results.
	ErrResearchShrank = errors.New("research results shrank")
)

// StageError wraps a failure raised by a stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RouteError reports a next_action with no matching conditional edge.
type RouteError struct {
	Stage      string
	NextAction string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("stage %s routed to %q: %v", e.Stage, e.NextAction, ErrUnknownRoute)
}

func (e *RouteError) Unwrap() error {
	return ErrUnknownRoute
}

// ExhaustedError carries the partial state of a run that hit the step cap.
type ExhaustedError struct {
	Steps     int
	LastStage string
	State     *State
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d steps (last stage %s)", ErrWorkflowExhausted, e.Steps, e.LastStage)
}

func (e *ExhaustedError) Unwrap() error {
	return ErrWorkflowExhausted
}
