package model

import (
	"sort"
	"sync"
)

// Registry resolves capabilities to model endpoints and tracks endpoint health.
// It is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig
	health       *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	Description string `json:"description"`

	// Preferred lists models in order of preference.
	Preferred []string `json:"preferred"`

	// Fallback lists backup models tried after every preferred model failed.
	Fallback []string `json:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the llm provider name (openai, ollama, anthropic).
	Provider string `json:"provider"`

	// URL overrides the provider default base URL.
	URL string `json:"url,omitempty"`

	// Model is the identifier sent to the provider.
	Model string `json:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model is used when a capability has no configuration.
	Model string `json:"model"`
}

// NewRegistry creates a registry from explicit capability and endpoint maps.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     &DefaultsConfig{Model: "default"},
		health:       newHealthState(DefaultHealthConfig()),
	}
}

// NewDefaultRegistry routes every capability to gpt-4o-mini with a local
// Ollama model as fallback.
func NewDefaultRegistry() *Registry {
	caps := make(map[Capability]*CapabilityConfig)
	for _, c := range AllCapabilities() {
		caps[c] = &CapabilityConfig{
			Preferred: []string{"gpt-4o-mini"},
			Fallback:  []string{"llama3.2"},
		}
	}
	caps[CapabilityRouting].Description = "Short classification answers"
	caps[CapabilityResearch].Description = "Search planning and sufficiency checks"
	caps[CapabilityWriting].Description = "Policy summaries, rankings and proposals"
	caps[CapabilityFast].Description = "Quick responses, simple tasks"

	r := NewRegistry(caps, map[string]*EndpointConfig{
		"gpt-4o-mini": {
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 128000,
		},
		"llama3.2": {
			Provider:  "ollama",
			URL:       "http://localhost:11434/v1",
			Model:     "llama3.2",
			MaxTokens: 128000,
		},
	})
	r.defaults.Model = "gpt-4o-mini"
	return r
}

// Resolve returns the first preferred model for a capability.
func (r *Registry) Resolve(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// GetFallbackChain returns all models for a capability in order of preference.
func (r *Registry) GetFallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Model}
}

// GetEndpoint returns the endpoint for a model name, or nil.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(c Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.capabilities[c] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endpoints[name] = cfg
}

// PreferEverywhere puts name first in every known capability's preferred list.
// Used when configuration pins a single endpoint.
func (r *Registry) PreferEverywhere(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range AllCapabilities() {
		cfg, ok := r.capabilities[c]
		if !ok {
			cfg = &CapabilityConfig{}
			r.capabilities[c] = cfg
		}
		preferred := []string{name}
		for _, m := range cfg.Preferred {
			if m != name {
				preferred = append(preferred, m)
			}
		}
		cfg.Preferred = preferred
	}
	r.defaults.Model = name
}

// ListCapabilities returns configured capabilities in sorted order.
func (r *Registry) ListCapabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]Capability, 0, len(r.capabilities))
	for c := range r.capabilities {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// ListEndpoints returns configured endpoint names in sorted order.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
