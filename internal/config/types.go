package config

import "time"

// Agent controls the run loop cadence and ceiling.
type Agent struct {
	MaxIterations int           `yaml:"max_iterations"`
	SettleDelay   time.Duration `yaml:"settle_delay"`
	StepDelay     time.Duration `yaml:"step_delay"`
}

// ServerConfig configures the HTTP dashboard.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// History configures the run history database.
type History struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// Logging configures log verbosity.
type Logging struct {
	Level string `yaml:"level"`
}

// Config represents the .goalboard/config.yaml file.
type Config struct {
	Agent   Agent         `yaml:"agent"`
	Server  *ServerConfig `yaml:"server,omitempty"`
	History History       `yaml:"history"`
	Logging Logging       `yaml:"logging"`
}
