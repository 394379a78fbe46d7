package model

import (
	"sync"
	"time"
)

// EndpointHealth is a snapshot of one endpoint's circuit breaker.
type EndpointHealth struct {
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	FailureCount    int       `json:"failure_count"`
	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures the circuit breaker.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects requests before
	// letting a trial request through.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns the breaker settings used by new registries.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

type healthState struct {
	mu       sync.Mutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
	now      func() time.Time
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
		now:      time.Now,
	}
}

// status returns the entry for name, creating it. Caller holds h.mu.
func (h *healthState) status(name string) *EndpointHealth {
	s, ok := h.statuses[name]
	if !ok {
		s = &EndpointHealth{}
		h.statuses[name] = s
	}
	return s
}

// MarkEndpointSuccess closes the circuit for name and clears its failure count.
func (r *Registry) MarkEndpointSuccess(name string) {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.status(name)
	s.LastSuccess = h.now()
	s.FailureCount = 0
	s.CircuitOpen = false
}

// MarkEndpointFailure counts a failure and opens the circuit at the threshold.
func (r *Registry) MarkEndpointFailure(name string) {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.status(name)
	s.LastFailure = h.now()
	s.FailureCount++
	if s.FailureCount >= h.config.FailureThreshold && !s.CircuitOpen {
		s.CircuitOpen = true
		s.CircuitOpenedAt = h.now()
	}
}

// IsEndpointAvailable reports whether requests may go to name. An open
// circuit becomes half-open once RecoveryTimeout has elapsed.
func (r *Registry) IsEndpointAvailable(name string) bool {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.statuses[name]
	if !ok || !s.CircuitOpen {
		return true
	}
	return h.now().Sub(s.CircuitOpenedAt) > h.config.RecoveryTimeout
}

// GetEndpointHealth returns a copy of the health for name, or nil if unseen.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.statuses[name]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// GetAvailableFallbackChain is GetFallbackChain without endpoints whose
// circuit is open. When every endpoint is open the full chain is returned.
func (r *Registry) GetAvailableFallbackChain(c Capability) []string {
	chain := r.GetFallbackChain(c)
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// SetHealthConfig replaces the breaker settings.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.health.mu.Lock()
	defer r.health.mu.Unlock()
	r.health.config = cfg
}

// ResetEndpointHealth forgets everything recorded for name.
func (r *Registry) ResetEndpointHealth(name string) {
	r.health.mu.Lock()
	defer r.health.mu.Unlock()
	delete(r.health.statuses, name)
}
