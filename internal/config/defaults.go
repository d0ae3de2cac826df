package config

import "time"

// Default returns the configuration used when no config file overrides it.
func Default() Config {
	return Config{
		LogLevel: "info",
		Gateway: GatewayConfig{
			Host: "localhost",
			Port: 8080,
		},
		Registry: RegistryConfig{
			HealthInterval:   Duration{30 * time.Second},
			FailureThreshold: 3,
			ProbeTimeout:     Duration{5 * time.Second},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration{100 * time.Millisecond},
			MaxDelay:    Duration{5 * time.Second},
		},
		Contexts: ContextsConfig{
			MaxRetained: 1024,
			MaxAge:      Duration{time.Hour},
		},
		State: StateConfig{
			PurgeInterval: Duration{time.Minute},
		},
		Workflows: WorkflowsConfig{
			Directory: "workflows",
			Watch:     true,
		},
		Plugins: PluginsConfig{
			Manifest:    "plugins.yaml",
			Watch:       true,
			InitTimeout: Duration{10 * time.Second},
		},
		Shutdown: ShutdownConfig{
			GracePeriod: Duration{15 * time.Second},
		},
	}
}
