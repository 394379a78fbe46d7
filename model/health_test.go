package model

import (
	"testing"
	"time"
)

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("gpt-4o-mini") {
		t.Error("expected endpoint to be available initially")
	}
	if r.GetEndpointHealth("gpt-4o-mini") != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("gpt-4o-mini")

	health := r.GetEndpointHealth("gpt-4o-mini")
	if health == nil {
		t.Fatal("expected health info after success")
	}
	if health.FailureCount != 0 || health.LastSuccess.IsZero() {
		t.Errorf("unexpected health %+v", health)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	r := NewDefaultRegistry()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.health.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		r.MarkEndpointFailure("llama3.2")
	}
	if !r.IsEndpointAvailable("llama3.2") {
		t.Fatal("circuit should stay closed below the threshold")
	}

	r.MarkEndpointFailure("llama3.2")
	if r.IsEndpointAvailable("llama3.2") {
		t.Fatal("circuit should open at the threshold")
	}

	chain := r.GetAvailableFallbackChain(CapabilityWriting)
	if len(chain) != 1 || chain[0] != "gpt-4o-mini" {
		t.Errorf("expected open endpoint filtered, got %v", chain)
	}

	now = now.Add(31 * time.Second)
	if !r.IsEndpointAvailable("llama3.2") {
		t.Error("expected half-open after recovery timeout")
	}

	r.MarkEndpointSuccess("llama3.2")
	if h := r.GetEndpointHealth("llama3.2"); h.CircuitOpen || h.FailureCount != 0 {
		t.Errorf("expected closed circuit after success, got %+v", h)
	}
}

func TestAvailableFallbackChainAllOpen(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("gpt-4o-mini")
	r.MarkEndpointFailure("llama3.2")

	chain := r.GetAvailableFallbackChain(CapabilityRouting)
	if len(chain) != 2 {
		t.Errorf("expected full chain when everything is open, got %v", chain)
	}

	r.ResetEndpointHealth("llama3.2")
	if !r.IsEndpointAvailable("llama3.2") {
		t.Error("expected reset endpoint to be available")
	}
}
