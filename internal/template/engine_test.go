package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
)

func bindContext() map[string]interface{} {
	return map[string]interface{}{
		"input": map[string]interface{}{
			"msg":   "hi",
			"count": 3,
		},
		"steps": map[string]interface{}{
			"fetch": map[string]interface{}{
				"url":    "https://example.com",
				"status": 200,
			},
			"broken": api.UnavailableResult,
		},
	}
}

func TestSimpleReferencePreservesType(t *testing.T) {
	e := New()

	v, err := e.Bind("{{ .input.count }}", bindContext())
	require.NoError(t, err)
	assert.Equal(t, 3, v, "a lone reference keeps the original type")

	v, err = e.Bind("{{ .steps.fetch.status }}", bindContext())
	require.NoError(t, err)
	assert.Equal(t, 200, v)
}

func TestStringInterpolation(t *testing.T) {
	e := New()

	v, err := e.Bind("said {{ .input.msg }} ({{ .input.count }} times)", bindContext())
	require.NoError(t, err)
	assert.Equal(t, "said hi (3 times)", v)
}

func TestNestedStructures(t *testing.T) {
	e := New()

	v, err := e.Bind(map[string]interface{}{
		"url":  "{{ .steps.fetch.url }}",
		"tags": []interface{}{"{{ .input.msg }}", "literal"},
		"n":    42,
	}, bindContext())
	require.NoError(t, err)

	bound := v.(map[string]interface{})
	assert.Equal(t, "https://example.com", bound["url"])
	assert.Equal(t, []interface{}{"hi", "literal"}, bound["tags"])
	assert.Equal(t, 42, bound["n"])
}

func TestMissingVariableIsAnError(t *testing.T) {
	e := New()

	_, err := e.Bind("{{ .input.nope }}", bindContext())
	assert.ErrorContains(t, err, "missing template variable")

	_, err = e.Bind(map[string]interface{}{"k": "{{ .steps.ghost.out }}"}, bindContext())
	assert.ErrorContains(t, err, `key "k"`)
}

func TestUnavailableSentinelPassesThrough(t *testing.T) {
	e := New()

	// Referencing the failed step itself.
	v, err := e.Bind("{{ .steps.broken }}", bindContext())
	require.NoError(t, err)
	assert.Equal(t, api.UnavailableResult, v)

	// Referencing a field inside the failed step's output resolves to the
	// sentinel too, never to an error or a silent null.
	v, err = e.Bind("{{ .steps.broken.result.value }}", bindContext())
	require.NoError(t, err)
	assert.Equal(t, api.UnavailableResult, v)
}

func TestGoTemplateFallbackWithSprig(t *testing.T) {
	e := New()

	v, err := e.Bind(`{{ upper .input.msg }}`, bindContext())
	require.NoError(t, err)
	assert.Equal(t, "HI", v)

	v, err = e.Bind(`{{ if eq .input.msg "hi" }}greeting{{ else }}other{{ end }}`, bindContext())
	require.NoError(t, err)
	assert.Equal(t, "greeting", v)
}

func TestLiteralsUntouched(t *testing.T) {
	e := New()

	v, err := e.Bind("no templates here", bindContext())
	require.NoError(t, err)
	assert.Equal(t, "no templates here", v)

	v, err = e.Bind(7.5, bindContext())
	require.NoError(t, err)
	assert.Equal(t, 7.5, v)
}
