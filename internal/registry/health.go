package registry

import (
	"context"
	"time"

	"conductor/internal/api"
	"conductor/internal/events"
	"conductor/pkg/logging"
)

// HealthConfig controls the periodic health monitor.
type HealthConfig struct {
	// Interval between probe rounds.
	Interval time.Duration

	// FailureThreshold is the number of consecutive failed probes that
	// demotes a service one level: Healthy -> Degraded -> Unavailable.
	FailureThreshold int

	// ProbeTimeout bounds a single HealthCheck call.
	ProbeTimeout time.Duration
}

// RunHealthMonitor probes every registered service at the configured interval
// until ctx is cancelled. A service failing FailureThreshold consecutive
// probes is demoted one level; any successful probe restores it to Healthy.
// Unavailable services are excluded from Select but stay registered.
func (r *Registry) RunHealthMonitor(ctx context.Context, cfg HealthConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}

	logging.Info("Registry", "health monitor running (interval %s, threshold %d)", cfg.Interval, cfg.FailureThreshold)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Debug("Registry", "health monitor stopped")
			return
		case <-ticker.C:
			r.CheckAll(ctx, cfg)
		}
	}
}

// CheckAll runs one probe round over all registered services. Exposed
// separately from RunHealthMonitor so callers (and tests) can force a round.
func (r *Registry) CheckAll(ctx context.Context, cfg HealthConfig) {
	r.mu.RLock()
	targets := make([]Service, 0, len(r.services))
	for _, e := range r.services {
		targets = append(targets, e.service)
	}
	r.mu.RUnlock()

	for _, svc := range targets {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		err := svc.HealthCheck(probeCtx)
		cancel()
		r.recordProbe(svc.ID(), err, cfg.FailureThreshold)
	}
}

// recordProbe applies one probe result to a service's health state and emits
// service.health when the status changes.
func (r *Registry) recordProbe(id string, probeErr error, threshold int) {
	r.mu.Lock()
	e, ok := r.services[id]
	if !ok {
		// Unregistered between snapshot and probe.
		r.mu.Unlock()
		return
	}

	old := e.info.Status
	e.info.LastHealthCheck = time.Now()

	if probeErr == nil {
		e.failures = 0
		e.info.Status = api.HealthHealthy
	} else {
		e.failures++
		if e.failures >= threshold {
			e.failures = 0
			e.info.Status = demote(e.info.Status)
		}
	}
	status := e.info.Status
	r.mu.Unlock()

	if status == old {
		return
	}
	if probeErr != nil {
		logging.Warn("Registry", "service %s transitioned %s -> %s: %v", id, old, status, probeErr)
	} else {
		logging.Info("Registry", "service %s recovered, %s -> %s", id, old, status)
	}
	r.bus.Emit(events.EventServiceHealth, map[string]interface{}{
		"serviceId": id,
		"oldStatus": string(old),
		"newStatus": string(status),
	})
}

func demote(s api.HealthStatus) api.HealthStatus {
	switch s {
	case api.HealthHealthy:
		return api.HealthDegraded
	default:
		return api.HealthUnavailable
	}
}
