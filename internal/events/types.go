package events

import "time"

// Event names emitted by the engine. Names are dot-separated with the
// subsystem as the leading segment, so subscribers can use a trailing
// wildcard ("task.*") to observe a whole subsystem.
const (
	// Task lifecycle events, emitted by the orchestrator.
	EventTaskStarted   = "task.started"
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"

	// Service registry events.
	EventServiceRegistered   = "service.registered"
	EventServiceUnregistered = "service.unregistered"
	EventServiceHealth       = "service.health"

	// Workflow lifecycle events.
	EventWorkflowRegistered = "workflow.registered"
	EventWorkflowStarted    = "workflow.started"
	EventWorkflowCompleted  = "workflow.completed"
	EventWorkflowFailed     = "workflow.failed"
	EventWorkflowPartial    = "workflow.partial"

	// Per-step workflow events.
	EventStepStarted   = "workflow.step.started"
	EventStepCompleted = "workflow.step.completed"
	EventStepFailed    = "workflow.step.failed"
	EventStepSkipped   = "workflow.step.skipped"

	// Retry observability.
	EventRetryAttempt = "retry.attempt"

	// EventError is the diagnostic event re-emitted when a subscriber's
	// handler panics. Handlers for EventError must not panic themselves;
	// failures there are logged and dropped to avoid recursion.
	EventError = "error"
)

// Event is one occurrence delivered to subscribers.
type Event struct {
	// Name is the dot-separated event name, e.g. "task.completed".
	Name string `json:"name"`

	// TaskID associates the event with a task, when there is one. Events for
	// the same task are delivered in emission order; no ordering holds across
	// tasks.
	TaskID string `json:"taskId,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Data carries event-specific attributes.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Handler receives events matching a subscription pattern.
type Handler func(Event)
