package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/internal/api"
	"conductor/internal/events"
)

// mockService implements Service for testing.
type mockService struct {
	id           string
	capabilities []string

	mu         sync.Mutex
	healthErr  error
	execCalls  int
	healthRuns int
}

func (m *mockService) ID() string                          { return m.id }
func (m *mockService) Name() string                        { return "mock " + m.id }
func (m *mockService) Capabilities() []string              { return m.capabilities }
func (m *mockService) Initialize(ctx context.Context) error { return nil }

func (m *mockService) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execCalls++
	return map[string]interface{}{"ok": true}, nil
}

func (m *mockService) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthRuns++
	return m.healthErr
}

func (m *mockService) setHealthErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

func newTestRegistry() *Registry {
	return NewRegistry(events.NewBus())
}

func TestRegisterAndSelect(t *testing.T) {
	r := newTestRegistry()
	svc := &mockService{id: "search-1", capabilities: []string{"search", "index"}}

	require.NoError(t, r.Register(svc))

	// Superset semantics: the service qualifies for any subset of its caps.
	selected := r.Select([]string{"search"})
	require.Len(t, selected, 1)
	assert.Equal(t, "search-1", selected[0].ID())

	selected = r.Select([]string{"search", "index"})
	assert.Len(t, selected, 1)

	// Requiring a capability it lacks excludes it.
	assert.Empty(t, r.Select([]string{"search", "translate"}))
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&mockService{id: "a", capabilities: []string{"x"}}))

	err := r.Register(&mockService{id: "a", capabilities: []string{"y"}})
	assert.True(t, api.IsDuplicateService(err))

	// The failed registration must not have touched the indices.
	assert.Empty(t, r.Select([]string{"y"}))
}

func TestUnregisterRemovesAllIndexEntries(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&mockService{id: "a", capabilities: []string{"x", "y"}}))

	require.NoError(t, r.Unregister("a"))

	assert.Empty(t, r.Select([]string{"x"}))
	assert.Empty(t, r.Select([]string{"y"}))
	assert.Empty(t, r.List())

	err := r.Unregister("a")
	assert.True(t, api.IsServiceNotFound(err))
}

func TestSelectEmptyIsNotAnError(t *testing.T) {
	r := newTestRegistry()
	assert.Empty(t, r.Select([]string{"nothing"}))
}

func TestSelectOrdering(t *testing.T) {
	r := newTestRegistry()
	a := &mockService{id: "a", capabilities: []string{"echo"}}
	b := &mockService{id: "b", capabilities: []string{"echo"}}
	c := &mockService{id: "c", capabilities: []string{"echo"}}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(c))

	// Registration order is the initial tie-break.
	ids := selectedIDs(r.Select([]string{"echo"}))
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	// Using a service pushes it behind the never-used ones.
	r.MarkUsed("a")
	ids = selectedIDs(r.Select([]string{"echo"}))
	assert.Equal(t, []string{"b", "c", "a"}, ids)

	r.MarkUsed("b")
	r.MarkUsed("c")
	ids = selectedIDs(r.Select([]string{"echo"}))
	assert.Equal(t, []string{"a", "b", "c"}, ids, "least-recently-used first")
}

func TestSelectOrdersHealthyBeforeDegraded(t *testing.T) {
	r := newTestRegistry()
	a := &mockService{id: "a", capabilities: []string{"echo"}}
	b := &mockService{id: "b", capabilities: []string{"echo"}}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	// Degrade "a" via probe failures.
	a.setHealthErr(errors.New("probe failed"))
	cfg := HealthConfig{FailureThreshold: 1, ProbeTimeout: time.Second}
	r.CheckAll(context.Background(), cfg)

	ids := selectedIDs(r.Select([]string{"echo"}))
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestGetAndList(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&mockService{id: "a", capabilities: []string{"x"}}))
	require.NoError(t, r.Register(&mockService{id: "b", capabilities: []string{"y"}}))

	svc, info, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", svc.ID())
	assert.Equal(t, api.HealthHealthy, info.Status)

	_, _, ok = r.Get("ghost")
	assert.False(t, ok)

	infos := r.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].ID)
	assert.Equal(t, "b", infos[1].ID)
}

func TestRegistryEmitsLifecycleEvents(t *testing.T) {
	bus := events.NewBus()
	var names []string
	bus.On("service.*", func(e events.Event) { names = append(names, e.Name) })

	r := NewRegistry(bus)
	require.NoError(t, r.Register(&mockService{id: "a", capabilities: []string{"x"}}))
	require.NoError(t, r.Unregister("a"))

	assert.Equal(t, []string{events.EventServiceRegistered, events.EventServiceUnregistered}, names)
}

func selectedIDs(services []Service) []string {
	ids := make([]string, len(services))
	for i, s := range services {
		ids[i] = s.ID()
	}
	return ids
}
