package retry

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
	"conductor/internal/events"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestExhaustionPerformsExactlyMaxAttempts(t *testing.T) {
	bus := events.NewBus()
	attemptsSeen := 0
	bus.On(events.EventRetryAttempt, func(events.Event) { attemptsSeen++ })

	m := NewManager(bus, nil)
	calls := 0
	_, err := m.Execute(context.Background(), "t1", "echo", func(context.Context) (map[string]interface{}, error) {
		calls++
		return nil, api.NewServiceExecutionError("svc", "echo", errors.New("transient"))
	}, fastPolicy(3))

	assert.Equal(t, 3, calls, "exactly maxAttempts attempts")
	assert.Equal(t, 3, attemptsSeen, "every attempt emits retry.attempt")

	require.True(t, api.IsRetriesExhausted(err))
	var exhausted *api.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, api.IsServiceExecution(exhausted.Err), "wraps the final failure")
}

func TestSuccessStopsRetrying(t *testing.T) {
	m := NewManager(events.NewBus(), nil)
	calls := 0

	result, err := m.Execute(context.Background(), "t1", "op", func(context.Context) (map[string]interface{}, error) {
		calls++
		if calls < 2 {
			return nil, errors.New("flaky")
		}
		return map[string]interface{}{"ok": true}, nil
	}, fastPolicy(5))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, true, result["ok"])
}

func TestFatalErrorSurfacesImmediately(t *testing.T) {
	m := NewManager(events.NewBus(), nil)
	calls := 0

	_, err := m.Execute(context.Background(), "t1", "op", func(context.Context) (map[string]interface{}, error) {
		calls++
		return nil, api.NewTaskValidationError("missing operation")
	}, fastPolicy(5))

	assert.Equal(t, 1, calls, "fatal errors are never retried")
	assert.True(t, api.IsTaskValidation(err))
	assert.False(t, api.IsRetriesExhausted(err))
}

func TestCustomClassifier(t *testing.T) {
	// Everything fatal: one attempt only.
	m := NewManager(events.NewBus(), ClassifierFunc(func(error) bool { return false }))
	calls := 0

	_, err := m.Execute(context.Background(), "t1", "op", func(context.Context) (map[string]interface{}, error) {
		calls++
		return nil, errors.New("anything")
	}, fastPolicy(5))

	assert.Equal(t, 1, calls)
	assert.EqualError(t, err, "anything")
}

func TestContextCancellationStopsBackoff(t *testing.T) {
	m := NewManager(events.NewBus(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := m.Execute(ctx, "t1", "op", func(context.Context) (map[string]interface{}, error) {
		calls++
		cancel() // cancel while the manager would back off
		return nil, errors.New("transient")
	}, Policy{MaxAttempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultClassifier(t *testing.T) {
	c := DefaultClassifier()

	assert.False(t, c.Retryable(nil))
	assert.False(t, c.Retryable(api.NewTaskValidationError("bad")))
	assert.False(t, c.Retryable(api.NewServiceNotFoundError("ghost")))
	assert.False(t, c.Retryable(api.NewInvalidWorkflowError("wf", "cycle")))
	assert.False(t, c.Retryable(api.NewTaskTimeoutError("t1")))
	assert.False(t, c.Retryable(context.Canceled))

	assert.True(t, c.Retryable(syscall.ECONNREFUSED))
	assert.True(t, c.Retryable(syscall.ECONNRESET))
	assert.True(t, c.Retryable(api.NewServiceExecutionError("svc", "op", errors.New("boom"))))
}
