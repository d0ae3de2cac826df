package retry

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"conductor/internal/api"
	"conductor/internal/events"
	"conductor/pkg/logging"
)

// Policy is the bounded, backoff-governed strategy for re-attempting a
// retryable failure. Delays grow as BaseDelay * 2^attempt, capped at
// MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is used where no policy is configured.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    5 * time.Second,
}

// Classifier decides whether a failure is worth retrying.
type Classifier interface {
	Retryable(err error) bool
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) bool

func (f ClassifierFunc) Retryable(err error) bool { return f(err) }

// DefaultClassifier implements the default policy: structural errors
// (validation, missing service, malformed workflow, timeouts, duplicates)
// are fatal; network and timeout failures, and anything a service raised
// while actually running, are retryable.
func DefaultClassifier() Classifier {
	return ClassifierFunc(func(err error) bool {
		switch {
		case err == nil:
			return false
		case api.IsTaskValidation(err),
			api.IsServiceNotFound(err),
			api.IsWorkflowNotFound(err),
			api.IsInvalidWorkflow(err),
			api.IsTaskTimeout(err),
			api.IsDuplicateService(err),
			api.IsDuplicateContext(err):
			return false
		case errors.Is(err, context.Canceled):
			return false
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		if os.IsTimeout(err) ||
			errors.Is(err, syscall.ECONNREFUSED) ||
			errors.Is(err, syscall.ECONNRESET) {
			return true
		}

		// The service ran and failed. Treat as transient unless classified
		// otherwise above.
		return true
	})
}

// Operation is one attemptable unit of work.
type Operation func(ctx context.Context) (map[string]interface{}, error)

// Manager wraps operations with classification and exponential backoff. A
// fatal error surfaces immediately; exhausting the policy surfaces the last
// error wrapped as RetriesExhaustedError.
type Manager struct {
	bus        *events.Bus
	classifier Classifier
}

// NewManager creates a retry manager. A nil classifier selects the default.
func NewManager(bus *events.Bus, classifier Classifier) *Manager {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Manager{bus: bus, classifier: classifier}
}

// Execute invokes fn up to policy.MaxAttempts times. Every attempt emits a
// retry.attempt event. Backoff delays respect ctx cancellation; a cancelled
// context surfaces ctx.Err() without further attempts.
func (m *Manager) Execute(ctx context.Context, taskID, operation string, fn Operation, policy Policy) (map[string]interface{}, error) {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseDelay
	bo.Multiplier = 2
	bo.MaxInterval = policy.MaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // attempts are bounded by count, not wall clock
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		m.bus.EmitTask(events.EventRetryAttempt, taskID, map[string]interface{}{
			"operation":   operation,
			"attempt":     attempt,
			"maxAttempts": policy.MaxAttempts,
		})

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !m.classifier.Retryable(err) {
			logging.Debug("RetryManager", "fatal error on %s (attempt %d): %v", operation, attempt, err)
			return nil, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		logging.Debug("RetryManager", "retryable error on %s (attempt %d/%d), backing off %s: %v",
			operation, attempt, policy.MaxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	logging.Warn("RetryManager", "retries exhausted for %s after %d attempts: %v", operation, policy.MaxAttempts, lastErr)
	return nil, api.NewRetriesExhaustedError(policy.MaxAttempts, lastErr)
}
