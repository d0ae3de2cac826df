package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
	"conductor/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Gateway.Port = 0 // let the kernel pick
	cfg.Workflows.Directory = filepath.Join(dir, "workflows")
	cfg.Workflows.Watch = false
	cfg.Plugins.Manifest = filepath.Join(dir, "plugins.yaml")
	cfg.Plugins.Watch = false
	cfg.Shutdown.GracePeriod = config.Duration{Duration: time.Second}
	return cfg
}

func TestNewWiresComponents(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.contexts.Close()

	assert.NotNil(t, a.orch)
	assert.NotNil(t, a.gateway)
	assert.Empty(t, a.registry.List(), "no plugins loaded until Run")
}

func TestRunLoadsDefinitionsAndStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	require.NoError(t, os.MkdirAll(cfg.Workflows.Directory, 0o755))
	wfDef := `
id: shout
steps:
  - id: loud
    service: transform
`
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Workflows.Directory, "shout.yaml"), []byte(wfDef), 0o644))
	manifest := `
plugins:
  - id: upper
    type: transform
    config:
      op: upper
  - id: ping
    type: echo
`
	require.NoError(t, os.WriteFile(cfg.Plugins.Manifest, []byte(manifest), 0o644))

	a, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(a.registry.List()) == 2
	}, 3*time.Second, 20*time.Millisecond, "manifest plugins registered on startup")

	_, ok := a.workflows.Get("shout")
	assert.True(t, ok)

	// The engine is live end to end: run a task straight through the
	// orchestrator.
	res, err := a.orch.ProcessTask(ctx, api.Task{
		ID:        "t1",
		Operation: "echo",
		Payload:   map[string]interface{}{"msg": "hello"},
	}, api.TaskMeta{})
	require.NoError(t, err)
	assert.Equal(t, api.TaskSucceeded, res.Status)
	assert.Equal(t, map[string]interface{}{"echoed": "hello"}, res.Result)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}

func TestRunMissingDefinitionsIsFine(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "absent workflow dir and manifest are not fatal")
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop on cancel")
	}
}
