// Package config loads the engine configuration from a single YAML file,
// overlaid on built-in defaults and validated before use. Durations are
// written as Go duration strings ("30s", "5m").
package config
