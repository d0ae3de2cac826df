package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("Test", "should be suppressed")
	Info("Test", "should be suppressed too")
	Warn("Test", "warning goes through")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "warning goes through")
	assert.Contains(t, out, "subsystem=Test")
}

func TestErrorAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("Gateway", assert.AnError, "request failed for task %s", "t1")

	out := buf.String()
	assert.Contains(t, out, "request failed for task t1")
	assert.True(t, strings.Contains(out, "error="), "error attribute should be present")
}
