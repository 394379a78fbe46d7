// Package progress delivers per-session workflow progress events to
// observers. Delivery is fire-and-forget: reporters never fail a run.
package progress

import (
	"context"
	"time"
)

// Event types.
const (
	TypeInit   = "init"
	TypeUpdate = "update"
)

// Event statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
)

// Event is one progress notification.
type Event struct {
	Type      string         `json:"type"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Pending builds a pending update for action.
func Pending(action string) Event {
	return Event{Type: TypeUpdate, Action: action, Status: StatusPending, Timestamp: time.Now().UTC()}
}

// Success builds a success update for action carrying data.
func Success(action string, data map[string]any) Event {
	return Event{Type: TypeUpdate, Action: action, Status: StatusSuccess, Data: data, Timestamp: time.Now().UTC()}
}

// Init builds the first event of a run.
func Init(action string) Event {
	return Event{Type: TypeInit, Action: action, Status: StatusPending, Timestamp: time.Now().UTC()}
}

// Reporter receives progress for a session. Report must not block for long
// and must swallow delivery failures.
type Reporter interface {
	Report(ctx context.Context, sessionID string, ev Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, sessionID string, ev Event)

// Report implements Reporter.
func (f ReporterFunc) Report(ctx context.Context, sessionID string, ev Event) {
	f(ctx, sessionID, ev)
}

// Nop discards every event.
type Nop struct{}

// Report implements Reporter.
func (Nop) Report(context.Context, string, Event) {}

// Multi fans an event out to several reporters in order.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(ctx context.Context, sessionID string, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, sessionID, ev)
		}
	}
}
