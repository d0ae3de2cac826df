package template

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"conductor/internal/api"
)

// Engine binds workflow step inputs from prior step outputs and the task
// payload. Values are resolved against a context of named roots, typically
// "input" (task payload) and "steps" (outputs keyed by step id).
type Engine struct {
	// Pattern for a simple variable access like {{ .steps.fetch.url }}.
	simplePattern *regexp.Regexp
}

// New creates a new template engine.
func New() *Engine {
	return &Engine{
		// The leading dot is mandatory so control keywords ({{ end }},
		// {{ else }}) are never mistaken for references.
		simplePattern: regexp.MustCompile(`\{\{\s*\.([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\s*\}\}`),
	}
}

// Bind replaces all template references in value with actual values from the
// context, recursing through maps and slices. A string that consists of a
// single reference preserves the referenced value's type; mixed strings are
// interpolated.
func (e *Engine) Bind(value interface{}, context map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.bindString(v, context)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			bound, err := e.Bind(val, context)
			if err != nil {
				return nil, fmt.Errorf("error in key %q: %w", key, err)
			}
			result[key] = bound
		}
		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			bound, err := e.Bind(val, context)
			if err != nil {
				return nil, fmt.Errorf("error at index %d: %w", i, err)
			}
			result[i] = bound
		}
		return result, nil
	default:
		// Non-templatable types are returned as-is.
		return value, nil
	}
}

func (e *Engine) bindString(s string, context map[string]interface{}) (interface{}, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	// A single simple reference keeps the original type: {{ .steps.a.count }}
	// bound into a number stays a number.
	if path, ok := e.asSimpleReference(s); ok {
		return lookupPath(context, path)
	}

	// Mixed content: interpolate every simple reference as a string first.
	interpolated := s
	for _, match := range e.simplePattern.FindAllStringSubmatch(s, -1) {
		value, err := lookupPath(context, match[1])
		if err != nil {
			return nil, err
		}
		interpolated = strings.ReplaceAll(interpolated, match[0], stringify(value))
	}

	// Anything beyond simple references (conditionals, pipelines) falls
	// through to the Go template engine.
	if strings.Contains(interpolated, "{{") {
		return e.RenderGoTemplate(interpolated, context)
	}
	return interpolated, nil
}

// asSimpleReference reports whether the whole string is one {{ .a.b.c }}
// reference, and returns its dotted path.
func (e *Engine) asSimpleReference(s string) (string, bool) {
	match := e.simplePattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil || match[0] != strings.TrimSpace(s) {
		return "", false
	}
	return match[1], true
}

// RenderGoTemplate renders a full Go template against the context, with the
// sprig function map available. Missing keys are errors, not empty strings:
// a silently dropped reference would corrupt step inputs.
func (e *Engine) RenderGoTemplate(tmpl string, context map[string]interface{}) (string, error) {
	t, err := texttemplate.New("bind").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// lookupPath navigates a dotted path through nested maps. Navigating into the
// unavailable sentinel yields the sentinel itself, so a reference into a
// failed step's output stays explicitly unavailable instead of erroring.
func lookupPath(context map[string]interface{}, path string) (interface{}, error) {
	parts := strings.Split(path, ".")
	var current interface{} = context

	for i, part := range parts {
		if current == api.UnavailableResult {
			return api.UnavailableResult, nil
		}
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("cannot navigate %q: %q is not an object", path, strings.Join(parts[:i], "."))
		}
		value, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("missing template variable %q", path)
		}
		current = value
	}
	return current, nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
