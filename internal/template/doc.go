// Package template implements input binding for workflow steps.
//
// Step inputs reference the task payload and prior step outputs with dotted
// paths: {{ .input.msg }}, {{ .steps.fetch.url }}. A string consisting of a
// single reference preserves the referenced value's type; anything more
// complex (interpolation, conditionals, sprig functions) renders through
// text/template and yields a string.
package template
