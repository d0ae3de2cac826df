// Package builtin provides the plugin types that ship with the engine: echo,
// transform, and delay. They cover smoke testing and simple payload plumbing
// without any external dependency, and double as reference implementations
// for plugin authors.
package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"conductor/internal/plugin"
	"conductor/internal/registry"
)

// Register adds the builtin plugin types to a loader.
func Register(loader *plugin.Loader) {
	loader.RegisterBuilder("echo", NewEcho)
	loader.RegisterBuilder("transform", NewTransform)
	loader.RegisterBuilder("delay", NewDelay)
}

// Echo returns its input message unchanged. Useful as a liveness probe for
// the whole pipeline.
type Echo struct {
	id string
}

// NewEcho builds an echo service. It takes no configuration.
func NewEcho(id string, _ map[string]interface{}) (registry.Service, error) {
	return &Echo{id: id}, nil
}

func (e *Echo) ID() string                        { return e.id }
func (e *Echo) Name() string                      { return "builtin echo" }
func (e *Echo) Capabilities() []string            { return []string{"echo"} }
func (e *Echo) Initialize(context.Context) error  { return nil }
func (e *Echo) HealthCheck(context.Context) error { return nil }

func (e *Echo) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"echoed": input["msg"]}, nil
}

// Transform applies a configured string operation to one input field.
type Transform struct {
	id    string
	op    string
	field string
}

// NewTransform builds a transform service. Config keys: "op" (upper, lower,
// trim) and "field" (which input key to transform, default "value").
func NewTransform(id string, cfg map[string]interface{}) (registry.Service, error) {
	op, _ := cfg["op"].(string)
	switch op {
	case "upper", "lower", "trim":
	default:
		return nil, fmt.Errorf("transform plugin %s: unsupported op %q", id, op)
	}
	field, _ := cfg["field"].(string)
	if field == "" {
		field = "value"
	}
	return &Transform{id: id, op: op, field: field}, nil
}

func (t *Transform) ID() string                        { return t.id }
func (t *Transform) Name() string                      { return "builtin transform (" + t.op + ")" }
func (t *Transform) Capabilities() []string            { return []string{"transform", "transform." + t.op} }
func (t *Transform) Initialize(context.Context) error  { return nil }
func (t *Transform) HealthCheck(context.Context) error { return nil }

func (t *Transform) Execute(_ context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	raw, ok := input[t.field]
	if !ok {
		return nil, fmt.Errorf("input has no field %q", t.field)
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("field %q is %T, want string", t.field, raw)
	}

	var out string
	switch t.op {
	case "upper":
		out = strings.ToUpper(s)
	case "lower":
		out = strings.ToLower(s)
	case "trim":
		out = strings.TrimSpace(s)
	}
	return map[string]interface{}{t.field: out}, nil
}

// Delay waits a fixed duration before returning its input. It exists to
// exercise timeouts, cancellation, and concurrent scheduling.
type Delay struct {
	id       string
	duration time.Duration
}

// NewDelay builds a delay service. Config key "duration" takes a Go duration
// string, default 100ms.
func NewDelay(id string, cfg map[string]interface{}) (registry.Service, error) {
	duration := 100 * time.Millisecond
	if raw, ok := cfg["duration"].(string); ok {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("delay plugin %s: bad duration %q: %w", id, raw, err)
		}
		duration = parsed
	}
	return &Delay{id: id, duration: duration}, nil
}

func (d *Delay) ID() string                        { return d.id }
func (d *Delay) Name() string                      { return "builtin delay" }
func (d *Delay) Capabilities() []string            { return []string{"delay"} }
func (d *Delay) Initialize(context.Context) error  { return nil }
func (d *Delay) HealthCheck(context.Context) error { return nil }

func (d *Delay) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	timer := time.NewTimer(d.duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	out := make(map[string]interface{}, len(input)+1)
	for k, v := range input {
		out[k] = v
	}
	out["delayedMs"] = d.duration.Milliseconds()
	return out, nil
}
