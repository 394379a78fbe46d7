// Package config provides configuration loading and management for civicdraft.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete civicdraft configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Zoning   ZoningConfig   `yaml:"zoning"`
	Bylaw    BylawConfig    `yaml:"bylaw"`
	Places   PlacesConfig   `yaml:"places"`
	Search   SearchConfig   `yaml:"search"`
	NATS     NATSConfig     `yaml:"nats"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	// Addr is the API listen address
	Addr string `yaml:"addr"`
	// MetricsAddr serves /metrics and /health; empty disables the exporter
	MetricsAddr string `yaml:"metrics_addr"`
	// AllowedOrigins lists WebSocket origins; empty accepts any origin
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ModelConfig configures model selection
type ModelConfig struct {
	// RegistryFile is a JSON model registry (capabilities and endpoints)
	RegistryFile string `yaml:"registry_file"`
	// Provider, Endpoint and Name pin one endpoint ahead of every capability
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	Name     string `yaml:"name"`
	// Temperature is sent with every request (0.0-1.0)
	Temperature float64 `yaml:"temperature"`
}

// WorkflowConfig configures the research workflow
type WorkflowConfig struct {
	// MaxSteps bounds stage executions per run
	MaxSteps int `yaml:"max_steps"`
}

// ZoningConfig configures the zoning dataset
type ZoningConfig struct {
	// Dataset is a doublestar glob of GeoJSON files
	Dataset string `yaml:"dataset"`
	// Watch reloads the dataset when files change
	Watch bool `yaml:"watch"`
	// Default is used when coordinates are missing or fall outside every polygon
	Default DefaultZone `yaml:"default"`
}

// DefaultZone is the zone assigned on a lookup miss
type DefaultZone struct {
	ZoneType  string `yaml:"zone_type"`
	Chapter   string `yaml:"chapter"`
	Section   string `yaml:"section"`
	Exception string `yaml:"exception"`
}

// BylawConfig configures bylaw text retrieval
type BylawConfig struct {
	BaseURL       string `yaml:"base_url"`
	MaxTextLength int    `yaml:"max_text_length"`
}

// PlacesConfig configures POI search and geocoding
type PlacesConfig struct {
	// APIKeyEnv names the environment variable holding the Places API key
	APIKeyEnv    string  `yaml:"api_key_env"`
	BaseURL      string  `yaml:"base_url"`
	GeocoderURL  string  `yaml:"geocoder_url"`
	UserAgent    string  `yaml:"user_agent"`
	City         string  `yaml:"city"`
	RadiusMeters float64 `yaml:"radius_meters"`
	MaxResults   int     `yaml:"max_results"`
	FallbackLat  float64 `yaml:"fallback_lat"`
	FallbackLon  float64 `yaml:"fallback_lon"`
}

// SearchConfig configures web search
type SearchConfig struct {
	APIKeyEnv  string `yaml:"api_key_env"`
	BaseURL    string `yaml:"base_url"`
	MaxResults int    `yaml:"max_results"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded starts an in-process server when URL is empty
	Embedded bool `yaml:"embedded"`
	// StoreRuns persists finished runs to JetStream KV
	StoreRuns bool `yaml:"store_runs"`
}

// TimeoutsConfig bounds each external call
type TimeoutsConfig struct {
	LLM    time.Duration `yaml:"llm"`
	Search time.Duration `yaml:"search"`
	Zoning time.Duration `yaml:"zoning"`
	Places time.Duration `yaml:"places"`
	Bylaw  time.Duration `yaml:"bylaw"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8000",
			MetricsAddr: ":9090",
		},
		Model: ModelConfig{
			Temperature: 0.2,
		},
		Workflow: WorkflowConfig{
			MaxSteps: 50,
		},
		Zoning: ZoningConfig{
			Dataset: "data/zoning/**/*.geojson",
			Default: DefaultZone{
				ZoneType: "CR",
				Chapter:  "40",
				Section:  "40.10",
			},
		},
		Bylaw: BylawConfig{
			BaseURL:       "https://www.toronto.ca/zoning/bylaw_amendments",
			MaxTextLength: 6000,
		},
		Places: PlacesConfig{
			APIKeyEnv:    "GPLACES_API_KEY",
			BaseURL:      "https://places.googleapis.com/v1",
			GeocoderURL:  "https://nominatim.openstreetmap.org",
			UserAgent:    "civicdraft",
			City:         "Toronto, Canada",
			RadiusMeters: 5000,
			MaxResults:   10,
			FallbackLat:  49.2827,
			FallbackLon:  -79.1207,
		},
		Search: SearchConfig{
			APIKeyEnv:  "TAVILY_API_KEY",
			BaseURL:    "https://api.tavily.com",
			MaxResults: 5,
		},
		NATS: NATSConfig{
			Embedded:  true,
			StoreRuns: true,
		},
		Timeouts: TimeoutsConfig{
			LLM:    2 * time.Minute,
			Search: 30 * time.Second,
			Zoning: 5 * time.Second,
			Places: 15 * time.Second,
			Bylaw:  20 * time.Second,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if (c.Model.Provider == "") != (c.Model.Name == "") {
		return fmt.Errorf("model.provider and model.name must be set together")
	}
	if c.Workflow.MaxSteps <= 0 {
		return fmt.Errorf("workflow.max_steps must be positive")
	}
	if c.Zoning.Default.ZoneType == "" {
		return fmt.Errorf("zoning.default.zone_type is required")
	}
	if c.Bylaw.MaxTextLength <= 0 {
		return fmt.Errorf("bylaw.max_text_length must be positive")
	}
	if c.Places.RadiusMeters <= 0 || c.Places.MaxResults <= 0 {
		return fmt.Errorf("places.radius_meters and places.max_results must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive")
	}
	t := c.Timeouts
	if t.LLM <= 0 || t.Search <= 0 || t.Zoning <= 0 || t.Places <= 0 || t.Bylaw <= 0 {
		return fmt.Errorf("every timeouts entry must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Server
	setString(&c.Server.Addr, other.Server.Addr)
	setString(&c.Server.MetricsAddr, other.Server.MetricsAddr)
	if len(other.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = other.Server.AllowedOrigins
	}

	// Model
	setString(&c.Model.RegistryFile, other.Model.RegistryFile)
	setString(&c.Model.Provider, other.Model.Provider)
	setString(&c.Model.Endpoint, other.Model.Endpoint)
	setString(&c.Model.Name, other.Model.Name)
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}

	// Workflow
	if other.Workflow.MaxSteps != 0 {
		c.Workflow.MaxSteps = other.Workflow.MaxSteps
	}

	// Zoning
	setString(&c.Zoning.Dataset, other.Zoning.Dataset)
	if other.Zoning.Watch {
		c.Zoning.Watch = true
	}
	if other.Zoning.Default.ZoneType != "" {
		c.Zoning.Default = other.Zoning.Default
	}

	// Bylaw
	setString(&c.Bylaw.BaseURL, other.Bylaw.BaseURL)
	if other.Bylaw.MaxTextLength != 0 {
		c.Bylaw.MaxTextLength = other.Bylaw.MaxTextLength
	}

	// Places
	p := other.Places
	setString(&c.Places.APIKeyEnv, p.APIKeyEnv)
	setString(&c.Places.BaseURL, p.BaseURL)
	setString(&c.Places.GeocoderURL, p.GeocoderURL)
	setString(&c.Places.UserAgent, p.UserAgent)
	setString(&c.Places.City, p.City)
	if p.RadiusMeters != 0 {
		c.Places.RadiusMeters = p.RadiusMeters
	}
	if p.MaxResults != 0 {
		c.Places.MaxResults = p.MaxResults
	}
	if p.FallbackLat != 0 || p.FallbackLon != 0 {
		c.Places.FallbackLat = p.FallbackLat
		c.Places.FallbackLon = p.FallbackLon
	}

	// Search
	setString(&c.Search.APIKeyEnv, other.Search.APIKeyEnv)
	setString(&c.Search.BaseURL, other.Search.BaseURL)
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Timeouts
	setDuration(&c.Timeouts.LLM, other.Timeouts.LLM)
	setDuration(&c.Timeouts.Search, other.Timeouts.Search)
	setDuration(&c.Timeouts.Zoning, other.Timeouts.Zoning)
	setDuration(&c.Timeouts.Places, other.Timeouts.Places)
	setDuration(&c.Timeouts.Bylaw, other.Timeouts.Bylaw)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
