package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// OpenAI-compatible wire types.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// capturedRequest is a served request kept for /requests.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per model
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string
	logger   *slog.Logger

	mu       sync.Mutex
	total    int64
	requests map[string][]capturedRequest
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures: fixtures,
		logger:   logger,
		requests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /requests", s.handleRequests)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sequence finds the fixtures for a model, falling back to the name without
// its "mock-" prefix.
func (s *server) sequence(model string) ([]string, bool) {
	if seq, ok := s.fixtures[model]; ok {
		return seq, true
	}
	seq, ok := s.fixtures[strings.TrimPrefix(model, "mock-")]
	return seq, ok
}

// next records the request and returns its 0-indexed per-model call number.
func (s *server) next(req chatRequest) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	idx := len(s.requests[req.Model])
	s.requests[req.Model] = append(s.requests[req.Model], capturedRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		CallIndex: idx + 1,
		Timestamp: time.Now().UnixMilli(),
	})
	return idx
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	seq, ok := s.sequence(req.Model)
	if !ok {
		s.logger.Warn("No fixture for model", "model", req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	idx := s.next(req)
	content := seq[min(idx, len(seq)-1)]
	s.logger.Debug("Serving fixture",
		"model", req.Model,
		"call", idx+1,
		"fixtures", len(seq),
		"bytes", len(content))

	writeJSON(w, http.StatusOK, chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     promptChars(req.Messages) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (promptChars(req.Messages) + len(content)) / 4,
		},
	})
}

func promptChars(msgs []chatMessage) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n
}

func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	models := make([]modelEntry, 0, len(s.fixtures))
	for name := range s.fixtures {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": models})
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	byModel := make(map[string]int, len(s.requests))
	for model, reqs := range s.requests {
		byModel[model] = len(reqs)
	}
	total := s.total
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"total_calls":    total,
		"calls_by_model": byModel,
	})
}

// handleRequests returns captured requests, optionally filtered by
// ?model= and ?call= (1-indexed).
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	call, _ := strconv.Atoi(r.URL.Query().Get("call"))

	s.mu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.requests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if call == 0 || req.CallIndex == call {
				result[model] = append(result[model], req)
			}
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"requests_by_model": result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
