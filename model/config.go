package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// RegistryConfig is the JSON form of a registry. A file may hold it at the
// top level or under a "model_registry" key.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty"`
}

// LoadFromFile loads a registry from a JSON file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry: %w", err)
	}
	return LoadFromJSON(data)
}

// LoadFromJSON loads a registry from JSON data.
func LoadFromJSON(data []byte) (*Registry, error) {
	var wrapped struct {
		ModelRegistry *RegistryConfig `json:"model_registry"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.ModelRegistry != nil {
		return registryFromConfig(wrapped.ModelRegistry)
	}

	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	return registryFromConfig(&cfg)
}

func registryFromConfig(cfg *RegistryConfig) (*Registry, error) {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		c := ParseCapability(k)
		if c == "" {
			return nil, fmt.Errorf("unknown capability %q", k)
		}
		for _, name := range append(append([]string{}, v.Preferred...), v.Fallback...) {
			if _, ok := cfg.Endpoints[name]; !ok {
				return nil, fmt.Errorf("capability %s references unknown endpoint %q", k, name)
			}
		}
		caps[c] = v
	}

	r := NewRegistry(caps, cfg.Endpoints)
	if cfg.Defaults != nil && cfg.Defaults.Model != "" {
		r.defaults.Model = cfg.Defaults.Model
	}
	return r, nil
}

// ToConfig converts the registry to its JSON form.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}
	defaults := *r.defaults
	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Defaults:     &defaults,
	}
}
