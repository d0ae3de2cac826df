package registry

import (
	"sort"
	"sync"
	"time"

	"conductor/internal/api"
	"conductor/internal/events"
	"conductor/pkg/logging"
)

// entry is the registry's bookkeeping for one registered service.
type entry struct {
	service  Service
	info     api.ServiceInfo
	failures int       // consecutive failed health probes since last transition
	regIndex int       // registration order, stable selection tie-break
	lastUsed time.Time // zero until first selection
}

// Registry is the capability-indexed directory of executable services. It is
// one of the two shared mutable structures in the process; all mutation goes
// through its methods and every method is safe under concurrent use.
type Registry struct {
	mu           sync.RWMutex
	services     map[string]*entry
	byCapability map[string]map[string]struct{} // capability -> service ids
	nextIndex    int

	bus *events.Bus
}

// NewRegistry creates an empty registry that reports lifecycle changes on the
// given bus.
func NewRegistry(bus *events.Bus) *Registry {
	return &Registry{
		services:     make(map[string]*entry),
		byCapability: make(map[string]map[string]struct{}),
		bus:          bus,
	}
}

// Register adds a service and indexes it under every declared capability.
// Fails with DuplicateServiceError if the id is already present. Emits
// service.registered on success.
func (r *Registry) Register(service Service) error {
	id := service.ID()

	r.mu.Lock()
	if _, exists := r.services[id]; exists {
		r.mu.Unlock()
		return api.NewDuplicateServiceError(id)
	}

	caps := append([]string(nil), service.Capabilities()...)
	e := &entry{
		service: service,
		info: api.ServiceInfo{
			ID:           id,
			Name:         service.Name(),
			Capabilities: caps,
			Status:       api.HealthHealthy,
			RegisteredAt: time.Now(),
		},
		regIndex: r.nextIndex,
	}
	r.nextIndex++
	r.services[id] = e

	for _, capability := range caps {
		ids, ok := r.byCapability[capability]
		if !ok {
			ids = make(map[string]struct{})
			r.byCapability[capability] = ids
		}
		ids[id] = struct{}{}
	}
	r.mu.Unlock()

	logging.Info("Registry", "registered service %s (capabilities: %v)", id, caps)
	r.bus.Emit(events.EventServiceRegistered, map[string]interface{}{
		"serviceId":    id,
		"capabilities": caps,
	})
	return nil
}

// Unregister removes a service and all of its capability index entries
// atomically. Fails with ServiceNotFoundError if the id is absent. Emits
// service.unregistered on success.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	e, exists := r.services[id]
	if !exists {
		r.mu.Unlock()
		return api.NewServiceNotFoundError(id)
	}

	delete(r.services, id)
	for _, capability := range e.info.Capabilities {
		if ids, ok := r.byCapability[capability]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.byCapability, capability)
			}
		}
	}
	r.mu.Unlock()

	logging.Info("Registry", "unregistered service %s", id)
	r.bus.Emit(events.EventServiceUnregistered, map[string]interface{}{
		"serviceId": id,
	})
	return nil
}

// Get returns a service and its info by id.
func (r *Registry) Get(id string) (Service, api.ServiceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.services[id]
	if !ok {
		return nil, api.ServiceInfo{}, false
	}
	return e.service, e.info, true
}

// List returns info for every registered service, in registration order.
// Unavailable services are included: being temporarily down is not the same
// as being removed.
func (r *Registry) List() []api.ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0, len(r.services))
	for _, e := range r.services {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].regIndex < entries[j].regIndex
	})

	infos := make([]api.ServiceInfo, len(entries))
	for i, e := range entries {
		infos[i] = e.info
	}
	return infos
}

// Select returns the services whose capability set is a superset of required,
// filtered to Healthy/Degraded status, ordered by health (Healthy first),
// then least-recently-used, then registration order. An empty result is not
// an error: callers decide whether no match is fatal.
func (r *Registry) Select(required []string) []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*entry
	if len(required) == 0 {
		for _, e := range r.services {
			if e.info.Status.Selectable() {
				candidates = append(candidates, e)
			}
		}
	} else {
		// Intersect from the first capability's index and verify the rest;
		// superset semantics, not exact match.
		ids, ok := r.byCapability[required[0]]
		if !ok {
			return nil
		}
		for id := range ids {
			e := r.services[id]
			if !e.info.Status.Selectable() {
				continue
			}
			if hasAll(e.info.Capabilities, required[1:]) {
				candidates = append(candidates, e)
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := healthRank(a.info.Status), healthRank(b.info.Status); ra != rb {
			return ra < rb
		}
		// Least-recently-used balances load; never-used sorts first.
		if !a.lastUsed.Equal(b.lastUsed) {
			return a.lastUsed.Before(b.lastUsed)
		}
		return a.regIndex < b.regIndex
	})

	services := make([]Service, len(candidates))
	for i, e := range candidates {
		services[i] = e.service
	}
	return services
}

// MarkUsed records that a service was selected for execution, feeding the
// least-recently-used ordering in Select.
func (r *Registry) MarkUsed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.services[id]; ok {
		e.lastUsed = time.Now()
	}
}

func hasAll(capabilities, required []string) bool {
	for _, req := range required {
		found := false
		for _, c := range capabilities {
			if c == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func healthRank(s api.HealthStatus) int {
	switch s {
	case api.HealthHealthy:
		return 0
	case api.HealthDegraded:
		return 1
	default:
		return 2
	}
}
