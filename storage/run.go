// Package storage persists finished workflow runs in NATS KV.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// BucketRuns holds one entry per finished run.
const BucketRuns = "CIVICDRAFT_RUNS"

// EntityTypeRun prefixes run identifiers.
const EntityTypeRun = "run"

// RunID is a typed run identifier of the form run:{uuid}.
type RunID struct {
	ID string
}

// String returns the string representation of the run ID.
func (r RunID) String() string {
	return fmt.Sprintf("%s:%s", EntityTypeRun, r.ID)
}

// NewRunID generates a new run ID.
func NewRunID() RunID {
	return RunID{ID: uuid.New().String()}
}

// ParseRunID accepts either run:{uuid} or a bare uuid.
func ParseRunID(s string) (RunID, error) {
	id := s
	if prefix, rest, ok := strings.Cut(s, ":"); ok {
		if prefix != EntityTypeRun {
			return RunID{}, fmt.Errorf("unknown entity type: %s", prefix)
		}
		id = rest
	}
	if _, err := uuid.Parse(id); err != nil {
		return RunID{}, fmt.Errorf("invalid run ID format: %s", s)
	}
	return RunID{ID: id}, nil
}

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusExhausted RunStatus = "exhausted"
)

// Run is a finished workflow run. State is the final (or partial) state
// document exactly as the API returned it.
type Run struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id,omitempty"`
	Status      RunStatus       `json:"status"`
	State       json.RawMessage `json:"state,omitempty"`
	Error       string          `json:"error,omitempty"`
	Steps       int             `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Store provides run storage backed by NATS KV.
type Store struct {
	runs jetstream.KeyValue
}

// NewStore creates a Store, creating the runs bucket if it doesn't exist.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	runs, err := getOrCreateBucket(ctx, js, BucketRuns)
	if err != nil {
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &Store{runs: runs}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "civicdraft finished workflow runs",
		History:     1,
	})
}

// SaveRun stores r. An empty ID is assigned a new one; a zero CompletedAt
// is set to now. The stored ID is returned.
func (s *Store) SaveRun(ctx context.Context, r *Run) (RunID, error) {
	var id RunID
	if r.ID == "" {
		id = NewRunID()
	} else {
		parsed, err := ParseRunID(r.ID)
		if err != nil {
			return RunID{}, err
		}
		id = parsed
	}
	r.ID = id.String()

	now := time.Now().UTC()
	if r.CompletedAt.IsZero() {
		r.CompletedAt = now
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.CompletedAt
	}

	data, err := json.Marshal(r)
	if err != nil {
		return RunID{}, fmt.Errorf("marshal run: %w", err)
	}

	if _, err := s.runs.Put(ctx, id.ID, data); err != nil {
		return RunID{}, fmt.Errorf("store run: %w", err)
	}
	return id, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id RunID) (*Run, error) {
	entry, err := s.runs.Get(ctx, id.ID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	var r Run
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &r, nil
}

// ListRuns returns all stored runs, newest first. Entries that fail to load
// are skipped.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	keys, err := s.runs.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	runs := make([]*Run, 0, len(keys))
	for _, key := range keys {
		entry, err := s.runs.Get(ctx, key)
		if err != nil {
			continue
		}
		var r Run
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			continue
		}
		runs = append(runs, &r)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CompletedAt.After(runs[j].CompletedAt)
	})
	return runs, nil
}
