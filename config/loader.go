package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "civicdraft.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/civicdraft"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/civicdraft/config.yaml)
// 3. Project config (civicdraft.yaml in current or parent directories)
// 4. Environment variables (CIVICDRAFT_*, NATS_URL)
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		l.mergeFile(config, userConfigPath, true)
	}

	if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		l.mergeFile(config, projectConfigPath, false)
	} else {
		l.logger.Debug("No project config found")
	}

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFile is Load with an explicit file in place of the project config.
func (l *Loader) LoadFile(path string) (*Config, error) {
	config := DefaultConfig()
	layer := &Config{}
	if err := decodeFile(path, layer); err != nil {
		return nil, err
	}
	config.Merge(layer)
	l.logger.Debug("Loaded config", slog.String("path", path))

	l.applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// mergeFile decodes path into an empty layer so unset keys don't reset
// values from earlier layers.
func (l *Loader) mergeFile(config *Config, path string, optional bool) {
	layer := &Config{}
	if err := decodeFile(path, layer); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return
		}
		l.logger.Warn("Failed to load config", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	l.logger.Debug("Loaded config", slog.String("path", path))
	config.Merge(layer)
}

// applyEnv overrides config from the environment.
func (l *Loader) applyEnv(config *Config) {
	envString := map[string]*string{
		"CIVICDRAFT_ADDR":           &config.Server.Addr,
		"CIVICDRAFT_METRICS_ADDR":   &config.Server.MetricsAddr,
		"CIVICDRAFT_MODEL_REGISTRY": &config.Model.RegistryFile,
		"CIVICDRAFT_MODEL_PROVIDER": &config.Model.Provider,
		"CIVICDRAFT_MODEL_ENDPOINT": &config.Model.Endpoint,
		"CIVICDRAFT_MODEL_NAME":     &config.Model.Name,
		"CIVICDRAFT_ZONING_DATASET": &config.Zoning.Dataset,
		"CIVICDRAFT_BYLAW_BASE_URL": &config.Bylaw.BaseURL,
	}
	for key, dst := range envString {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("CIVICDRAFT_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Workflow.MaxSteps = n
		} else {
			l.logger.Warn("Ignoring invalid CIVICDRAFT_MAX_STEPS", slog.String("value", v))
		}
	}
	if v := os.Getenv("CIVICDRAFT_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Timeouts.LLM = d
		} else {
			l.logger.Warn("Ignoring invalid CIVICDRAFT_LLM_TIMEOUT", slog.String("value", v))
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		config.NATS.URL = v
		config.NATS.Embedded = false
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for civicdraft.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
