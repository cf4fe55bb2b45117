package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thruflo/goalboard/internal/agent"
)

// Default values for Config.
const (
	DefaultMaxIterations = agent.MaxIterations
	DefaultSettleDelay   = 400 * time.Millisecond
	DefaultStepDelay     = 1200 * time.Millisecond
	DefaultServerPort    = 8374
	DefaultHistoryPath   = ".goalboard/history.db"
	DefaultLogLevel      = "warn"
)

// DirName is the per-project configuration directory.
const DirName = ".goalboard"

// DefaultAgent returns agent settings with sensible default values.
func DefaultAgent() Agent {
	return Agent{
		MaxIterations: DefaultMaxIterations,
		SettleDelay:   DefaultSettleDelay,
		StepDelay:     DefaultStepDelay,
	}
}

// DefaultServerConfig returns a ServerConfig with sensible default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port: DefaultServerPort,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Agent:   DefaultAgent(),
		Server:  DefaultServerConfig(),
		History: History{Path: DefaultHistoryPath},
		Logging: Logging{Level: DefaultLogLevel},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// LoadConfig reads and parses .goalboard/config.yaml from the given base path.
// If the file doesn't exist, returns default config.
func LoadConfig(basePath string) (*Config, error) {
	cfg, err := LoadConfigFile(filepath.Join(basePath, DirName, "config.yaml"))
	if err != nil && errors.Is(err, os.ErrNotExist) {
		def := DefaultConfig()
		return &def, nil
	}
	return cfg, err
}

// LoadConfigFile reads and parses a config file at an explicit path.
// Defaults are applied for any missing fields.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s: %w", path, os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Server == nil {
		cfg.Server = DefaultServerConfig()
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if cfg.Agent.MaxIterations <= 0 {
		return ValidationError{Field: "agent.max_iterations", Message: "must be positive"}
	}
	if cfg.Agent.SettleDelay < 0 {
		return ValidationError{Field: "agent.settle_delay", Message: "must not be negative"}
	}
	if cfg.Agent.StepDelay < 0 {
		return ValidationError{Field: "agent.step_delay", Message: "must not be negative"}
	}
	if !cfg.History.Disabled && cfg.History.Path == "" {
		return ValidationError{Field: "history.path", Message: "required unless history is disabled"}
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return ValidationError{Field: "logging.level", Message: "must be one of debug, info, warn, error"}
	}

	if cfg.Server != nil {
		if err := ValidateServerConfig(cfg.Server); err != nil {
			return err
		}
	}

	return nil
}

// ValidateServerConfig checks that server config values are valid.
func ValidateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	return nil
}

// Save writes cfg to .goalboard/config.yaml under basePath.
func Save(basePath string, cfg *Config) error {
	dir := filepath.Join(basePath, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
