package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
	"conductor/internal/state"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(RetentionConfig{MaxEntries: 128}, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestCreateContextDuplicate(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.CreateContext("t1", api.TaskMeta{UserID: "u1"}))
	err := m.CreateContext("t1", api.TaskMeta{})
	assert.True(t, api.IsDuplicateContext(err))

	status, err := m.Status("t1")
	require.NoError(t, err)
	assert.Equal(t, api.TaskPending, status)
}

func TestRecordsAndMetrics(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateContext("t1", api.TaskMeta{}))

	require.NoError(t, m.AddExecutionStep("t1", api.StepRecord{Step: "select-service", Outcome: api.StepCompleted}))
	require.NoError(t, m.AddExecutionStep("t1", api.StepRecord{Step: "execute", Outcome: api.StepCompleted}))
	require.NoError(t, m.AddServiceUsage("t1", "svc-a", "echo", 40*time.Millisecond, true))
	require.NoError(t, m.AddServiceUsage("t1", "svc-a", "echo", 20*time.Millisecond, true))
	require.NoError(t, m.AddServiceUsage("t1", "svc-b", "transform", 60*time.Millisecond, false))

	metrics, err := m.Metrics("t1")
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.StepCount)
	assert.Equal(t, 2, metrics.ServiceCount, "distinct services, not invocations")
	assert.Equal(t, int64(120), metrics.TotalDurationMs)
	assert.InDelta(t, 2.0/3.0, metrics.SuccessRate, 1e-9)
}

func TestMetricsIdempotent(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateContext("t1", api.TaskMeta{}))
	require.NoError(t, m.AddServiceUsage("t1", "svc", "op", 10*time.Millisecond, true))

	first, err := m.Metrics("t1")
	require.NoError(t, err)
	second, err := m.Metrics("t1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "no intervening appends, identical results")
}

func TestUnknownTask(t *testing.T) {
	m := newTestManager(t)

	err := m.AddExecutionStep("ghost", api.StepRecord{Step: "x"})
	assert.True(t, api.IsContextNotFound(err))

	_, err = m.Metrics("ghost")
	assert.True(t, api.IsContextNotFound(err))

	_, err = m.Snapshot("ghost")
	assert.True(t, api.IsContextNotFound(err))
}

func TestTerminalStatusMovesContextToRetention(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateContext("t1", api.TaskMeta{SessionID: "s1"}))
	require.NoError(t, m.SetStatus("t1", api.TaskRunning))
	require.NoError(t, m.AddServiceUsage("t1", "svc", "op", 5*time.Millisecond, true))
	require.NoError(t, m.SetStatus("t1", api.TaskSucceeded))

	assert.Equal(t, 0, m.LiveCount())

	// Completed context stays queryable from retention.
	status, err := m.Status("t1")
	require.NoError(t, err)
	assert.Equal(t, api.TaskSucceeded, status)

	snap, err := m.Snapshot("t1")
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.SessionID)
	assert.Len(t, snap.Usages, 1)

	metrics, err := m.Metrics("t1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, metrics.SuccessRate)

	// Appending after completion is rejected: the record is immutable.
	err = m.AddExecutionStep("t1", api.StepRecord{Step: "late"})
	assert.True(t, api.IsContextNotFound(err))

	// The id is free for a fresh submission once the old run completed.
	assert.NoError(t, m.CreateContext("t1", api.TaskMeta{}))
}

func TestTerminalStatusClearsTaskState(t *testing.T) {
	states := state.NewManager()
	m, err := NewManager(RetentionConfig{MaxEntries: 16}, states)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	require.NoError(t, m.CreateContext("t1", api.TaskMeta{}))
	states.SetTask("t1", "scratch", "value", 0)

	require.NoError(t, m.SetStatus("t1", api.TaskFailed))

	_, ok := states.GetTask("t1", "scratch")
	assert.False(t, ok, "task-scoped state is garbage collected on completion")
}

func TestLiveTasks(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateContext("t1", api.TaskMeta{}))
	require.NoError(t, m.CreateContext("t2", api.TaskMeta{}))
	require.NoError(t, m.SetStatus("t2", api.TaskSucceeded))

	assert.ElementsMatch(t, []string{"t1"}, m.LiveTasks())
}
