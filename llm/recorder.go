package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// CallSubject is the NATS subject LLM call records are published on.
const CallSubject = "civicdraft.llm.calls"

// CallRecord describes one Complete call after it finished, successfully or not.
type CallRecord struct {
	RequestID     string     `json:"request_id"`
	Capability    string     `json:"capability"`
	Model         string     `json:"model,omitempty"`
	Provider      string     `json:"provider,omitempty"`
	JSON          bool       `json:"json_mode"`
	Usage         TokenUsage `json:"usage"`
	FinishReason  string     `json:"finish_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	DurationMs    int64      `json:"duration_ms"`
	Error         string     `json:"error,omitempty"`
	Retries       int        `json:"retries"`
	FallbacksUsed []string   `json:"fallbacks_used,omitempty"`
}

// Failed reports whether the call ended without a response.
func (r *CallRecord) Failed() bool {
	return r.Error != ""
}

// CallRecorder receives call records. Implementations must not block the caller.
type CallRecorder interface {
	RecordCall(ctx context.Context, rec *CallRecord)
}

// NATSCallPublisher publishes call records as JSON on CallSubject.
type NATSCallPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSCallPublisher returns a publisher bound to nc.
func NewNATSCallPublisher(nc *nats.Conn, logger *slog.Logger) *NATSCallPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSCallPublisher{nc: nc, logger: logger}
}

// RecordCall publishes rec. Publish errors are logged and dropped.
func (p *NATSCallPublisher) RecordCall(_ context.Context, rec *CallRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("Failed to marshal LLM call record", "request_id", rec.RequestID, "error", err)
		return
	}
	if err := p.nc.Publish(CallSubject, data); err != nil {
		p.logger.Warn("Failed to publish LLM call record", "request_id", rec.RequestID, "error", err)
	}
}
