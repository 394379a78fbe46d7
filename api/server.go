// Package api exposes the proposal workflow over HTTP and progress over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/civicdraft/progress"
	"github.com/c360studio/civicdraft/storage"
	"github.com/c360studio/civicdraft/workflow"
)

// maxBodySize bounds a proposal request body.
const maxBodySize = 1 << 20

// Error codes returned in ErrorResponse.Error.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeValidation         = "validation_error"
	CodeStageFailed        = "stage_failed"
	CodeExhausted          = "workflow_exhausted"
	CodeRunFailed          = "run_failed"
	CodeNotFound           = "not_found"
	CodeStorageUnavailable = "storage_unavailable"
)

// Runner executes one workflow run. *workflow.Engine satisfies it.
type Runner interface {
	Execute(ctx context.Context, state *workflow.State) (*workflow.Result, error)
}

// RunStore persists finished runs. *storage.Store satisfies it.
type RunStore interface {
	SaveRun(ctx context.Context, r *storage.Run) (storage.RunID, error)
	GetRun(ctx context.Context, id storage.RunID) (*storage.Run, error)
	ListRuns(ctx context.Context) ([]*storage.Run, error)
}

// ProposalRequest is the body of POST /api/proposals.
type ProposalRequest struct {
	Location        string                `json:"location"`
	Coordinates     *workflow.Coordinates `json:"coordinates,omitempty"`
	Summary         string                `json:"summary"`
	SolutionOutline string                `json:"solution_outline"`
	SessionID       string                `json:"session_id,omitempty"`
}

// State converts the request into a fresh workflow state.
func (p ProposalRequest) State() *workflow.State {
	return &workflow.State{
		Location:        strings.TrimSpace(p.Location),
		Coordinates:     p.Coordinates,
		Summary:         strings.TrimSpace(p.Summary),
		SolutionOutline: strings.TrimSpace(p.SolutionOutline),
	}
}

// ErrorResponse is the payload of every failed request. State carries the
// partial state of a failed run.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	State   *workflow.State `json:"state,omitempty"`
}

// Server serves the proposal API.
type Server struct {
	runner Runner
	hub    *progress.Hub
	store  RunStore
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithHub enables the /ws/{session_id} progress endpoint.
func WithHub(h *progress.Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithStore persists every finished run and enables GET /api/proposals/{id}.
func WithStore(st RunStore) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server around runner.
func NewServer(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner: runner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHTTPHandlers registers the API routes on mux.
func (s *Server) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/proposals", s.handleCreateProposal)
	mux.HandleFunc("GET /api/proposals", s.handleListProposals)
	mux.HandleFunc("GET /api/proposals/{id}", s.handleGetProposal)
	mux.HandleFunc("GET /ws/{session_id}", s.handleProgress)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterHTTPHandlers(mux)
	return mux
}

// handleCreateProposal handles POST /api/proposals.
// The run is synchronous; progress streams to the session's WebSocket clients.
func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req ProposalRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: CodeInvalidRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	state := req.State()
	if err := state.Validate(); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, ErrorResponse{Error: CodeValidation, Message: err.Error()})
		return
	}

	ctx := workflow.ContextWithSession(r.Context(), req.SessionID)
	createdAt := time.Now().UTC()
	res, err := s.runner.Execute(ctx, state)

	final := state
	steps := 0
	if res != nil {
		steps = res.Steps
		if res.State != nil {
			final = res.State
		}
	}

	runID := s.saveRun(r.Context(), req.SessionID, final, steps, createdAt, err)
	if runID != "" {
		w.Header().Set("X-Run-ID", runID)
	}

	if err != nil {
		status, body := failure(err, final)
		s.logger.Warn("Proposal run failed",
			"session_id", req.SessionID,
			"location", state.Location,
			"steps", steps,
			"error", err)
		s.writeError(w, status, body)
		return
	}

	s.writeJSON(w, http.StatusOK, final)
}

// failure maps a run error to an HTTP status and payload.
func failure(err error, state *workflow.State) (int, ErrorResponse) {
	var (
		stageErr *workflow.StageError
		exErr    *workflow.ExhaustedError
	)
	switch {
	case errors.As(err, &exErr):
		return http.StatusGatewayTimeout, ErrorResponse{Error: CodeExhausted, Message: err.Error(), State: state}
	case errors.As(err, &stageErr):
		return http.StatusInternalServerError, ErrorResponse{Error: CodeStageFailed, Message: err.Error(), State: state}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: CodeRunFailed, Message: err.Error(), State: state}
	}
}

// saveRun stores the run when storage is configured and returns its id.
// Storage failures are logged; the caller still gets the run result.
func (s *Server) saveRun(ctx context.Context, sessionID string, state *workflow.State, steps int, createdAt time.Time, runErr error) string {
	if s.store == nil {
		return ""
	}

	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("Failed to marshal run state", "error", err)
		return ""
	}

	run := &storage.Run{
		SessionID: sessionID,
		Status:    storage.RunStatusComplete,
		State:     data,
		Steps:     steps,
		CreatedAt: createdAt,
	}
	if runErr != nil {
		run.Status = storage.RunStatusFailed
		if errors.Is(runErr, workflow.ErrWorkflowExhausted) {
			run.Status = storage.RunStatusExhausted
		}
		run.Error = runErr.Error()
	}

	// The request may have been cancelled; the record is still worth keeping.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	id, err := s.store.SaveRun(ctx, run)
	if err != nil {
		s.logger.Warn("Failed to store run", "session_id", sessionID, "error", err)
		return ""
	}
	return id.String()
}

// handleGetProposal handles GET /api/proposals/{id}.
func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrorResponse{Error: CodeStorageUnavailable, Message: "Run storage is not configured"})
		return
	}

	id, err := storage.ParseRunID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: CodeInvalidRequest, Message: err.Error()})
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, ErrorResponse{Error: CodeNotFound, Message: "Run not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to get run", "run_id", id.String(), "error", err)
		s.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: CodeRunFailed, Message: "Failed to retrieve run"})
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleListProposals handles GET /api/proposals, newest first.
func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, ErrorResponse{Error: CodeStorageUnavailable, Message: "Run storage is not configured"})
		return
	}

	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: CodeRunFailed, Message: "Failed to list runs"})
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handleProgress handles GET /ws/{session_id}.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.NotFound(w, r)
		return
	}
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}
	s.hub.Serve(w, r, sessionID)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	s.writeJSON(w, status, body)
}
