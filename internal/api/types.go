package api

import "time"

// TaskStatus represents the lifecycle state of a submitted task.
//
// The state machine is Pending -> Running -> {Succeeded | Failed}. Workflow
// executions under the best-effort failure policy may additionally finish as
// PartiallyFailed when some, but not all, steps failed.
type TaskStatus string

const (
	TaskPending         TaskStatus = "Pending"
	TaskRunning         TaskStatus = "Running"
	TaskSucceeded       TaskStatus = "Succeeded"
	TaskFailed          TaskStatus = "Failed"
	TaskPartiallyFailed TaskStatus = "PartiallyFailed"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSucceeded, TaskFailed, TaskPartiallyFailed:
		return true
	default:
		return false
	}
}

// Task is a single unit of requested work submitted to the orchestrator.
// A task is immutable once submitted.
//
// Operation names the capability to resolve when neither Service nor Workflow
// pins an explicit target. Service, when set, bypasses capability matching and
// targets one registered service by id. Workflow, when set, routes the task
// through the workflow engine instead of a single service call.
type Task struct {
	ID        string                 `json:"id" validate:"required"`
	Operation string                 `json:"operation" validate:"required"`
	Service   string                 `json:"service,omitempty"`
	Workflow  string                 `json:"workflow,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`

	// Deadline, when set, bounds the whole execution. On expiry the task is
	// failed with a TaskTimeoutError and any late result is discarded.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// TaskMeta carries caller identity attached to a task's execution context.
type TaskMeta struct {
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// TaskResult is the orchestrator's answer for one processed task.
type TaskResult struct {
	TaskID string      `json:"taskId"`
	Status TaskStatus  `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// HealthStatus represents the health of a registered service.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "Healthy"
	HealthDegraded    HealthStatus = "Degraded"
	HealthUnavailable HealthStatus = "Unavailable"
	HealthUnknown     HealthStatus = "Unknown"
)

// Selectable reports whether a service in this state may be returned by
// service selection. Unavailable services stay registered but are skipped.
func (h HealthStatus) Selectable() bool {
	return h == HealthHealthy || h == HealthDegraded
}

// ServiceInfo is the registry's public view of one registered service.
type ServiceInfo struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Capabilities    []string     `json:"capabilities"`
	Status          HealthStatus `json:"status"`
	LastHealthCheck time.Time    `json:"lastHealthCheck,omitempty"`
	RegisteredAt    time.Time    `json:"registeredAt"`
}

// StepRecord is one append-only entry in a task's execution trace.
type StepRecord struct {
	Step       string    `json:"step"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
}

// Step outcomes recorded in StepRecord.Outcome.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// UsageRecord is one append-only record of a service invocation made on
// behalf of a task. Steps that were never attempted produce no UsageRecord.
type UsageRecord struct {
	ServiceID  string `json:"serviceId"`
	Action     string `json:"action"`
	DurationMs int64  `json:"durationMs"`
	Success    bool   `json:"success"`
}

// ExecutionMetrics are per-task aggregates computed from the execution trace.
type ExecutionMetrics struct {
	StepCount       int     `json:"stepCount"`
	ServiceCount    int     `json:"serviceCount"`
	TotalDurationMs int64   `json:"totalDurationMs"`
	SuccessRate     float64 `json:"successRate"`
}

// ExecutionSnapshot is an immutable copy of a task's execution context, as
// exposed to the gateway and retained after completion.
type ExecutionSnapshot struct {
	TaskID    string        `json:"taskId"`
	UserID    string        `json:"userId,omitempty"`
	SessionID string        `json:"sessionId,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Status    TaskStatus    `json:"status"`
	Steps     []StepRecord  `json:"executionSteps"`
	Usages    []UsageRecord `json:"serviceUsages"`
}

// FailurePolicy controls how a workflow reacts to a failing step.
type FailurePolicy string

const (
	// FailFast aborts all remaining steps on the first failure and marks the
	// workflow Failed.
	FailFast FailurePolicy = "fail-fast"

	// BestEffort keeps executing branches that do not depend on the failed
	// step and marks the workflow PartiallyFailed if any step failed.
	BestEffort FailurePolicy = "best-effort"
)

// Workflow is a static, DAG-shaped composition of steps executed against
// discovered services. Definitions are loaded once and treated as read-only
// at execution time.
type Workflow struct {
	ID            string         `json:"id" yaml:"id" validate:"required"`
	Name          string         `json:"name" yaml:"name"`
	FailurePolicy FailurePolicy  `json:"failurePolicy,omitempty" yaml:"failurePolicy,omitempty"`
	Steps         []WorkflowStep `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
}

// WorkflowStep is one node of a workflow DAG.
//
// Service names either a registered service id or a capability; explicit ids
// win when both match. Input is a template bound from the task payload and
// prior step outputs. DependsOn must reference steps defined earlier in the
// same workflow.
type WorkflowStep struct {
	ID        string                 `json:"id" yaml:"id" validate:"required"`
	Service   string                 `json:"service" yaml:"service" validate:"required"`
	Input     map[string]interface{} `json:"input,omitempty" yaml:"input,omitempty"`
	DependsOn []string               `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

// Policy returns the workflow's failure policy, defaulting to fail-fast.
func (w *Workflow) Policy() FailurePolicy {
	if w.FailurePolicy == BestEffort {
		return BestEffort
	}
	return FailFast
}

// UnavailableResult is the sentinel bound in place of a reference to a step
// that failed (or was skipped) under the best-effort failure policy. It is
// explicit on purpose: a silent null would be indistinguishable from a step
// that legitimately produced no output.
const UnavailableResult = "__unavailable__"
