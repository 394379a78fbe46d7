package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the session id to form the publish subject.
const SubjectPrefix = "civicdraft.progress."

// Subject returns the NATS subject for a session.
func Subject(sessionID string) string {
	return SubjectPrefix + sessionID
}

// NATSPublisher publishes events as JSON on civicdraft.progress.{session_id}.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher on nc.
func NewNATSPublisher(nc *nats.Conn, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, logger: logger}
}

// Report implements Reporter.
func (p *NATSPublisher) Report(_ context.Context, sessionID string, ev Event) {
	if p.nc == nil || sessionID == "" {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to encode progress event", "error", err)
		return
	}
	if err := p.nc.Publish(Subject(sessionID), data); err != nil {
		p.logger.Debug("Progress publish failed", "session_id", sessionID, "error", err)
	}
}
