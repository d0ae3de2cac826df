package state

import (
	"sync"
	"time"

	"conductor/pkg/logging"
)

// Scope is the namespace boundary for stored state.
type Scope string

const (
	// ScopeGlobal entries live for the process lifetime unless explicitly
	// deleted.
	ScopeGlobal Scope = "global"

	// ScopeSession entries are namespaced by session id and are garbage
	// collected when the owning session is torn down.
	ScopeSession Scope = "session"

	// ScopeTask entries are namespaced by task id and are garbage collected
	// when the owning task completes.
	ScopeTask Scope = "task"
)

// scopeKey namespaces entries so identical key strings in different scopes
// (or different sessions/tasks) never collide.
type scopeKey struct {
	scope Scope
	id    string
}

type entry struct {
	value     interface{}
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Manager is the scoped key/value store shared by the engine. It is one of
// the two shared mutable structures in the process (the other being the
// service registry); its methods are the sole mutation entry points and all
// of them are safe to call repeatedly.
type Manager struct {
	mu      sync.RWMutex
	entries map[scopeKey]map[string]entry
}

// NewManager creates an empty state manager.
func NewManager() *Manager {
	return &Manager{
		entries: make(map[scopeKey]map[string]entry),
	}
}

// SetGlobal stores a global-scoped value. A zero ttl means no expiry.
func (m *Manager) SetGlobal(key string, value interface{}, ttl time.Duration) {
	m.set(scopeKey{scope: ScopeGlobal}, key, value, ttl)
}

// GetGlobal reads a global-scoped value. The second return value reports
// whether the key exists; an expired entry reads as absent.
func (m *Manager) GetGlobal(key string) (interface{}, bool) {
	return m.get(scopeKey{scope: ScopeGlobal}, key)
}

// DeleteGlobal removes a global-scoped value. Deleting an absent key is a
// no-op.
func (m *Manager) DeleteGlobal(key string) {
	m.delete(scopeKey{scope: ScopeGlobal}, key)
}

// SetSession stores a session-scoped value.
func (m *Manager) SetSession(sessionID, key string, value interface{}, ttl time.Duration) {
	m.set(scopeKey{scope: ScopeSession, id: sessionID}, key, value, ttl)
}

// GetSession reads a session-scoped value.
func (m *Manager) GetSession(sessionID, key string) (interface{}, bool) {
	return m.get(scopeKey{scope: ScopeSession, id: sessionID}, key)
}

// DeleteSession removes a session-scoped value.
func (m *Manager) DeleteSession(sessionID, key string) {
	m.delete(scopeKey{scope: ScopeSession, id: sessionID}, key)
}

// SetTask stores a task-scoped value.
func (m *Manager) SetTask(taskID, key string, value interface{}, ttl time.Duration) {
	m.set(scopeKey{scope: ScopeTask, id: taskID}, key, value, ttl)
}

// GetTask reads a task-scoped value.
func (m *Manager) GetTask(taskID, key string) (interface{}, bool) {
	return m.get(scopeKey{scope: ScopeTask, id: taskID}, key)
}

// DeleteTask removes a task-scoped value.
func (m *Manager) DeleteTask(taskID, key string) {
	m.delete(scopeKey{scope: ScopeTask, id: taskID}, key)
}

// ClearSession drops every entry belonging to a session. Called on session
// teardown.
func (m *Manager) ClearSession(sessionID string) {
	m.clear(scopeKey{scope: ScopeSession, id: sessionID})
}

// ClearTask drops every entry belonging to a task. Called by the context
// manager when a task reaches a terminal status.
func (m *Manager) ClearTask(taskID string) {
	m.clear(scopeKey{scope: ScopeTask, id: taskID})
}

// PurgeExpired removes every expired entry. Expired entries already read as
// absent; this reclaims their memory eagerly and is intended for a periodic
// maintenance ticker.
func (m *Manager) PurgeExpired() int {
	now := time.Now()
	purged := 0

	m.mu.Lock()
	defer m.mu.Unlock()

	for sk, bucket := range m.entries {
		for key, e := range bucket {
			if e.expired(now) {
				delete(bucket, key)
				purged++
			}
		}
		if len(bucket) == 0 {
			delete(m.entries, sk)
		}
	}

	if purged > 0 {
		logging.Debug("StateManager", "purged %d expired entries", purged)
	}
	return purged
}

// Len returns the number of live entries across all scopes. Expired entries
// still count until purged; the figure is for health reporting, not
// correctness.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, bucket := range m.entries {
		total += len(bucket)
	}
	return total
}

func (m *Manager) set(sk scopeKey, key string, value interface{}, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.entries[sk]
	if !ok {
		bucket = make(map[string]entry)
		m.entries[sk] = bucket
	}
	bucket[key] = e
}

func (m *Manager) get(sk scopeKey, key string) (interface{}, bool) {
	m.mu.RLock()
	e, ok := m.entries[sk][key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		// Lazy purge: expired entries are treated as absent on read.
		m.delete(sk, key)
		return nil, false
	}
	return e.value, true
}

func (m *Manager) delete(sk scopeKey, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bucket, ok := m.entries[sk]; ok {
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(m.entries, sk)
		}
	}
}

func (m *Manager) clear(sk scopeKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sk)
}
