package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry values like "30s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config is the top-level configuration for the engine.
type Config struct {
	LogLevel  string          `yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Registry  RegistryConfig  `yaml:"registry"`
	Retry     RetryConfig     `yaml:"retry"`
	Contexts  ContextsConfig  `yaml:"contexts"`
	State     StateConfig     `yaml:"state"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
}

// Addr returns the listen address in host:port form.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// RegistryConfig configures service health monitoring.
type RegistryConfig struct {
	HealthInterval   Duration `yaml:"healthInterval,omitempty"`
	FailureThreshold int      `yaml:"failureThreshold,omitempty" validate:"omitempty,min=1"`
	ProbeTimeout     Duration `yaml:"probeTimeout,omitempty"`
}

// RetryConfig configures the default retry policy for service calls.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts,omitempty" validate:"omitempty,min=1"`
	BaseDelay   Duration `yaml:"baseDelay,omitempty"`
	MaxDelay    Duration `yaml:"maxDelay,omitempty"`
}

// ContextsConfig bounds retention of completed execution contexts.
type ContextsConfig struct {
	MaxRetained int64    `yaml:"maxRetained,omitempty" validate:"omitempty,min=1"`
	MaxAge      Duration `yaml:"maxAge,omitempty"`
}

// StateConfig configures the shared state store.
type StateConfig struct {
	// PurgeInterval is how often expired entries are swept. Entries are also
	// purged lazily on read.
	PurgeInterval Duration `yaml:"purgeInterval,omitempty"`
}

// WorkflowsConfig points at the workflow definition directory.
type WorkflowsConfig struct {
	Directory string `yaml:"directory,omitempty"`
	Watch     bool   `yaml:"watch,omitempty"`
}

// PluginsConfig points at the plugin manifest.
type PluginsConfig struct {
	Manifest    string   `yaml:"manifest,omitempty"`
	Watch       bool     `yaml:"watch,omitempty"`
	InitTimeout Duration `yaml:"initTimeout,omitempty"`
}

// ShutdownConfig bounds graceful shutdown.
type ShutdownConfig struct {
	GracePeriod Duration `yaml:"gracePeriod,omitempty"`
}
