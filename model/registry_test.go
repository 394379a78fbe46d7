package model

import (
	"testing"
)

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	if got := len(r.ListCapabilities()); got != 4 {
		t.Errorf("expected 4 capabilities, got %d", got)
	}
	if got := r.ListEndpoints(); len(got) != 2 || got[0] != "gpt-4o-mini" || got[1] != "llama3.2" {
		t.Errorf("unexpected endpoints %v", got)
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		capability Capability
		expected   string
	}{
		{CapabilityRouting, "gpt-4o-mini"},
		{CapabilityResearch, "gpt-4o-mini"},
		{CapabilityWriting, "gpt-4o-mini"},
		{CapabilityFast, "gpt-4o-mini"},
		{Capability("unknown"), "gpt-4o-mini"},
	}

	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			if got := r.Resolve(tt.capability); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.capability, got, tt.expected)
			}
		})
	}
}

func TestRegistryGetFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.GetFallbackChain(CapabilityWriting)
	if len(chain) != 2 || chain[0] != "gpt-4o-mini" || chain[1] != "llama3.2" {
		t.Errorf("unexpected chain %v", chain)
	}

	empty := NewRegistry(nil, nil)
	if chain := empty.GetFallbackChain(CapabilityWriting); len(chain) != 1 || chain[0] != "default" {
		t.Errorf("expected default-only chain, got %v", chain)
	}
}

func TestPreferEverywhere(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetEndpoint("local", &EndpointConfig{Provider: "ollama", Model: "mistral"})
	r.PreferEverywhere("local")

	for _, c := range AllCapabilities() {
		chain := r.GetFallbackChain(c)
		if chain[0] != "local" {
			t.Errorf("%s: expected local first, got %v", c, chain)
		}
		if len(chain) != 3 {
			t.Errorf("%s: expected 3 models, got %v", c, chain)
		}
	}
	if got := r.Resolve(Capability("other")); got != "local" {
		t.Errorf("expected default to be local, got %q", got)
	}
}

func TestCapabilityForStage(t *testing.T) {
	if got := CapabilityForStage("determine_research_path"); got != CapabilityRouting {
		t.Errorf("got %q", got)
	}
	if got := CapabilityForStage("write_proposal"); got != CapabilityWriting {
		t.Errorf("got %q", got)
	}
	if got := CapabilityForStage("nope"); got != CapabilityFast {
		t.Errorf("got %q", got)
	}
	if ParseCapability("coding") != "" {
		t.Error("coding is not a capability")
	}
}

func TestLoadFromJSON(t *testing.T) {
	data := []byte(`{
		"model_registry": {
			"capabilities": {
				"writing": {"preferred": ["sonnet"], "fallback": ["local"]}
			},
			"endpoints": {
				"sonnet": {"provider": "anthropic", "model": "claude-sonnet-4-20250514"},
				"local": {"provider": "ollama", "url": "http://localhost:11434/v1", "model": "llama3.2"}
			},
			"defaults": {"model": "local"}
		}
	}`)

	r, err := LoadFromJSON(data)
	if err != nil {
		t.Fatalf("LoadFromJSON: %v", err)
	}
	if got := r.Resolve(CapabilityWriting); got != "sonnet" {
		t.Errorf("Resolve(writing) = %q", got)
	}
	if got := r.Resolve(CapabilityRouting); got != "local" {
		t.Errorf("Resolve(routing) = %q, want default", got)
	}
	if ep := r.GetEndpoint("sonnet"); ep == nil || ep.Provider != "anthropic" {
		t.Errorf("unexpected endpoint %+v", ep)
	}

	cfg := r.ToConfig()
	if cfg.Defaults.Model != "local" || len(cfg.Endpoints) != 2 {
		t.Errorf("unexpected round trip %+v", cfg)
	}
}

func TestLoadFromJSONRejectsBadReferences(t *testing.T) {
	cases := map[string]string{
		"unknown capability": `{"capabilities": {"coding": {"preferred": ["a"]}}, "endpoints": {"a": {"provider": "openai", "model": "x"}}}`,
		"unknown endpoint":   `{"capabilities": {"writing": {"preferred": ["missing"]}}, "endpoints": {}}`,
		"invalid json":       `{`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFromJSON([]byte(data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
