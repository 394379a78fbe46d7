package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := NewStore(ctx, js)
	require.NoError(t, err)
	return store
}

func TestRunID(t *testing.T) {
	id := NewRunID()
	assert.NotEmpty(t, id.ID)
	assert.Equal(t, "run:"+id.ID, id.String())

	parsed, err := ParseRunID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	bare, err := ParseRunID(id.ID)
	require.NoError(t, err)
	assert.Equal(t, id, bare)

	for _, bad := range []string{"", "run:", "run:not-a-uuid", "task:" + id.ID, "invalid"} {
		_, err := ParseRunID(bad)
		assert.Error(t, err, bad)
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state := json.RawMessage(`{"location":"Niagara","next_action":"__end__"}`)
	run := &Run{Status: RunStatusComplete, SessionID: "s1", State: state, Steps: 9}
	id, err := store.SaveRun(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, id.String(), run.ID)
	assert.False(t, run.CompletedAt.IsZero())

	got, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, got.Status)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, 9, got.Steps)
	assert.JSONEq(t, string(state), string(got.State))
}

func TestSaveRunKeepsGivenID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := NewRunID()
	id, err := store.SaveRun(ctx, &Run{ID: want.ID, Status: RunStatusFailed, Error: "stage search failed"})
	require.NoError(t, err)
	assert.Equal(t, want, id)

	got, err := store.GetRun(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, "stage search failed", got.Error)

	_, err = store.SaveRun(ctx, &Run{ID: "bogus"})
	assert.Error(t, err)
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), NewRunID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, status := range []RunStatus{RunStatusComplete, RunStatusExhausted, RunStatusFailed} {
		_, err := store.SaveRun(ctx, &Run{Status: status, CompletedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	runs, err = store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Equal(t, RunStatusComplete, runs[2].Status)
}
