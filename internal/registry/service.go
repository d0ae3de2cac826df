package registry

import "context"

// Service is the contract every capability-bearing adapter implements.
//
// Capabilities are fixed at registration: changing a service's capability set
// requires unregistering and re-registering it, never in-place mutation, so
// the registry's capability indices stay consistent.
type Service interface {
	// ID returns the unique service identifier.
	ID() string

	// Name returns the human-readable service name.
	Name() string

	// Capabilities returns the named abilities this service can perform.
	// The basis for service selection.
	Capabilities() []string

	// Initialize prepares the service for use. Called once by the plugin
	// loader before registration.
	Initialize(ctx context.Context) error

	// Execute performs one operation. The input map is the bound step input
	// or task payload; the returned map is the operation result.
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

	// HealthCheck probes the service. A nil return means healthy.
	HealthCheck(ctx context.Context) error
}
