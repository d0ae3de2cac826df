package execution

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"conductor/internal/api"
	"conductor/internal/state"
	"conductor/pkg/logging"
)

// taskContext is the authoritative record of one task's progress. Owned
// exclusively by the Manager; mutated only through its methods.
type taskContext struct {
	taskID    string
	userID    string
	sessionID string
	createdAt time.Time
	status    api.TaskStatus
	steps     []api.StepRecord
	usages    []api.UsageRecord

	// Running aggregates, updated on append so Metrics never rescans.
	totalDurationMs int64
	successCount    int
	serviceIDs      map[string]struct{}
}

// RetentionConfig bounds how many completed contexts stay queryable.
type RetentionConfig struct {
	// MaxEntries bounds the number of retained completed contexts.
	MaxEntries int64

	// MaxAge evicts retained contexts by age. Zero keeps them until the
	// size bound pushes them out.
	MaxAge time.Duration
}

// Manager owns every execution context. Live contexts sit in a map and are
// never evicted while a task is running; completed contexts move into a
// bounded LRU-flavored retention cache and eventually age out.
type Manager struct {
	mu       sync.RWMutex
	live     map[string]*taskContext
	retained *ristretto.Cache[string, *api.ExecutionSnapshot]
	maxAge   time.Duration

	states *state.Manager
}

// NewManager creates a context manager. The state manager is used to garbage
// collect task-scoped state when a context reaches a terminal status; it may
// be nil in tests that do not exercise state.
func NewManager(cfg RetentionConfig, states *state.Manager) (*Manager, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}

	retained, err := ristretto.NewCache(&ristretto.Config[string, *api.ExecutionSnapshot]{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		live:     make(map[string]*taskContext),
		retained: retained,
		maxAge:   cfg.MaxAge,
		states:   states,
	}, nil
}

// Close releases the retention cache.
func (m *Manager) Close() {
	m.retained.Close()
}

// CreateContext creates the execution context for a task at submission time.
// Fails with DuplicateContextError if a live context for the task already
// exists.
func (m *Manager) CreateContext(taskID string, meta api.TaskMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.live[taskID]; exists {
		return api.NewDuplicateContextError(taskID)
	}

	m.live[taskID] = &taskContext{
		taskID:     taskID,
		userID:     meta.UserID,
		sessionID:  meta.SessionID,
		createdAt:  time.Now(),
		status:     api.TaskPending,
		serviceIDs: make(map[string]struct{}),
	}
	logging.Debug("ContextManager", "created context for task %s", taskID)
	return nil
}

// AddExecutionStep appends a step record to the task's execution trace.
func (m *Manager) AddExecutionStep(taskID string, rec api.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tc, ok := m.live[taskID]
	if !ok {
		return api.NewContextNotFoundError(taskID)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	tc.steps = append(tc.steps, rec)
	return nil
}

// AddServiceUsage appends a service usage record and updates the running
// aggregates.
func (m *Manager) AddServiceUsage(taskID, serviceID, action string, duration time.Duration, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tc, ok := m.live[taskID]
	if !ok {
		return api.NewContextNotFoundError(taskID)
	}

	durationMs := duration.Milliseconds()
	tc.usages = append(tc.usages, api.UsageRecord{
		ServiceID:  serviceID,
		Action:     action,
		DurationMs: durationMs,
		Success:    success,
	})
	tc.totalDurationMs += durationMs
	if success {
		tc.successCount++
	}
	tc.serviceIDs[serviceID] = struct{}{}
	return nil
}

// SetStatus transitions a live context. A terminal status moves the context
// out of the live map into the retention cache and tears down the task's
// scoped state; a Running context is never evicted.
func (m *Manager) SetStatus(taskID string, status api.TaskStatus) error {
	m.mu.Lock()
	tc, ok := m.live[taskID]
	if !ok {
		m.mu.Unlock()
		return api.NewContextNotFoundError(taskID)
	}
	tc.status = status

	if !status.Terminal() {
		m.mu.Unlock()
		return nil
	}

	snapshot := tc.snapshot()
	delete(m.live, taskID)
	m.mu.Unlock()

	if m.maxAge > 0 {
		m.retained.SetWithTTL(taskID, snapshot, 1, m.maxAge)
	} else {
		m.retained.Set(taskID, snapshot, 1)
	}
	// Ristretto admits asynchronously; wait so the snapshot is immediately
	// readable by callers observing the terminal status.
	m.retained.Wait()

	if m.states != nil {
		m.states.ClearTask(taskID)
	}
	logging.Debug("ContextManager", "task %s finished as %s (%d steps, %d usages)",
		taskID, status, len(snapshot.Steps), len(snapshot.Usages))
	return nil
}

// Status returns the task's current status.
func (m *Manager) Status(taskID string) (api.TaskStatus, error) {
	m.mu.RLock()
	if tc, ok := m.live[taskID]; ok {
		status := tc.status
		m.mu.RUnlock()
		return status, nil
	}
	m.mu.RUnlock()

	if snap, ok := m.retained.Get(taskID); ok {
		return snap.Status, nil
	}
	return "", api.NewContextNotFoundError(taskID)
}

// Snapshot returns an immutable copy of the task's execution context, live
// or retained.
func (m *Manager) Snapshot(taskID string) (*api.ExecutionSnapshot, error) {
	m.mu.RLock()
	if tc, ok := m.live[taskID]; ok {
		snap := tc.snapshot()
		m.mu.RUnlock()
		return snap, nil
	}
	m.mu.RUnlock()

	if snap, ok := m.retained.Get(taskID); ok {
		return snap, nil
	}
	return nil, api.NewContextNotFoundError(taskID)
}

// Metrics computes the per-task aggregates from the execution records. With
// no intervening appends, repeated calls return identical results.
func (m *Manager) Metrics(taskID string) (api.ExecutionMetrics, error) {
	m.mu.RLock()
	if tc, ok := m.live[taskID]; ok {
		metrics := api.ExecutionMetrics{
			StepCount:       len(tc.steps),
			ServiceCount:    len(tc.serviceIDs),
			TotalDurationMs: tc.totalDurationMs,
			SuccessRate:     successRate(tc.successCount, len(tc.usages)),
		}
		m.mu.RUnlock()
		return metrics, nil
	}
	m.mu.RUnlock()

	if snap, ok := m.retained.Get(taskID); ok {
		return metricsFromSnapshot(snap), nil
	}
	return api.ExecutionMetrics{}, api.NewContextNotFoundError(taskID)
}

// LiveCount returns the number of live (not yet terminal) contexts.
func (m *Manager) LiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// LiveTasks returns the ids of all live contexts. Used by the orchestrator
// to force-fail remaining work during shutdown.
func (m *Manager) LiveTasks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	return ids
}

func (tc *taskContext) snapshot() *api.ExecutionSnapshot {
	return &api.ExecutionSnapshot{
		TaskID:    tc.taskID,
		UserID:    tc.userID,
		SessionID: tc.sessionID,
		CreatedAt: tc.createdAt,
		Status:    tc.status,
		Steps:     append([]api.StepRecord(nil), tc.steps...),
		Usages:    append([]api.UsageRecord(nil), tc.usages...),
	}
}

func metricsFromSnapshot(snap *api.ExecutionSnapshot) api.ExecutionMetrics {
	services := make(map[string]struct{})
	var total int64
	successes := 0
	for _, u := range snap.Usages {
		services[u.ServiceID] = struct{}{}
		total += u.DurationMs
		if u.Success {
			successes++
		}
	}
	return api.ExecutionMetrics{
		StepCount:       len(snap.Steps),
		ServiceCount:    len(services),
		TotalDurationMs: total,
		SuccessRate:     successRate(successes, len(snap.Usages)),
	}
}

func successRate(successes, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successes) / float64(total)
}
