package orchestrator

import "conductor/internal/api"

// HealthSummary is the aggregated view served on the health endpoint.
type HealthSummary struct {
	Status    string         `json:"status"` // "ok" or "degraded"
	Services  map[string]int `json:"services"`
	LiveTasks int            `json:"liveTasks"`
	Draining  bool           `json:"draining"`
}

// Health aggregates registry health into a single status. The engine reports
// degraded when any registered service is not healthy or when a shutdown is
// draining; an empty registry is still ok.
func (o *Orchestrator) Health() HealthSummary {
	o.mu.Lock()
	draining := o.draining
	o.mu.Unlock()

	counts := make(map[string]int)
	degraded := draining
	for _, info := range o.registry.List() {
		counts[string(info.Status)]++
		if info.Status != api.HealthHealthy {
			degraded = true
		}
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	return HealthSummary{
		Status:    status,
		Services:  counts,
		LiveTasks: o.contexts.LiveCount(),
		Draining:  draining,
	}
}
