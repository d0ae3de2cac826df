package api

import (
	"errors"
	"fmt"
)

// The error taxonomy for the orchestration engine. Every error type carries
// enough context for the caller to decide what to do, and maps to a stable
// code (see ErrorCode) used in gateway responses and events.
//
// Propagation policy: transient execution errors are retried locally by the
// retry manager and never surface unless exhausted; structural errors
// (validation, missing service, malformed workflow) surface immediately and
// are never retried.

// TaskValidationError indicates a malformed task (missing id or operation).
// Never retried.
type TaskValidationError struct {
	Reason string
}

func (e *TaskValidationError) Error() string {
	return fmt.Sprintf("invalid task: %s", e.Reason)
}

// NewTaskValidationError creates a TaskValidationError with the given reason.
func NewTaskValidationError(reason string) *TaskValidationError {
	return &TaskValidationError{Reason: reason}
}

// IsTaskValidation checks if an error is or wraps a TaskValidationError.
func IsTaskValidation(err error) bool {
	var e *TaskValidationError
	return errors.As(err, &e)
}

// ServiceNotFoundError indicates that no registered service satisfies the
// requested capability or id. Never retried: retrying an absent service is
// pointless.
type ServiceNotFoundError struct {
	// Target is the service id or capability that failed to resolve.
	Target string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service %s not found", e.Target)
}

// NewServiceNotFoundError creates a ServiceNotFoundError for the given
// service id or capability.
func NewServiceNotFoundError(target string) *ServiceNotFoundError {
	return &ServiceNotFoundError{Target: target}
}

// IsServiceNotFound checks if an error is or wraps a ServiceNotFoundError.
func IsServiceNotFound(err error) bool {
	var e *ServiceNotFoundError
	return errors.As(err, &e)
}

// WorkflowNotFoundError indicates that a task named a workflow id that is not
// registered. Structural, never retried.
type WorkflowNotFoundError struct {
	WorkflowID string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow %s not found", e.WorkflowID)
}

// NewWorkflowNotFoundError creates a WorkflowNotFoundError.
func NewWorkflowNotFoundError(id string) *WorkflowNotFoundError {
	return &WorkflowNotFoundError{WorkflowID: id}
}

// IsWorkflowNotFound checks if an error is or wraps a WorkflowNotFoundError.
func IsWorkflowNotFound(err error) bool {
	var e *WorkflowNotFoundError
	return errors.As(err, &e)
}

// ServiceExecutionError indicates that a service ran and failed. Whether it
// is retried depends on the retry manager's classifier.
type ServiceExecutionError struct {
	ServiceID string
	Action    string
	Err       error
}

func (e *ServiceExecutionError) Error() string {
	return fmt.Sprintf("service %s failed executing %s: %v", e.ServiceID, e.Action, e.Err)
}

func (e *ServiceExecutionError) Unwrap() error { return e.Err }

// NewServiceExecutionError wraps a service failure with its origin.
func NewServiceExecutionError(serviceID, action string, err error) *ServiceExecutionError {
	return &ServiceExecutionError{ServiceID: serviceID, Action: action, Err: err}
}

// IsServiceExecution checks if an error is or wraps a ServiceExecutionError.
func IsServiceExecution(err error) bool {
	var e *ServiceExecutionError
	return errors.As(err, &e)
}

// InvalidWorkflowError indicates a workflow definition that failed DAG
// validation (duplicate step ids, dangling or forward dependsOn references,
// cycles). Rejected at registration; no partial state is stored.
type InvalidWorkflowError struct {
	WorkflowID string
	Reason     string
}

func (e *InvalidWorkflowError) Error() string {
	return fmt.Sprintf("invalid workflow %s: %s", e.WorkflowID, e.Reason)
}

// NewInvalidWorkflowError creates an InvalidWorkflowError.
func NewInvalidWorkflowError(id, reason string) *InvalidWorkflowError {
	return &InvalidWorkflowError{WorkflowID: id, Reason: reason}
}

// IsInvalidWorkflow checks if an error is or wraps an InvalidWorkflowError.
func IsInvalidWorkflow(err error) bool {
	var e *InvalidWorkflowError
	return errors.As(err, &e)
}

// RetriesExhaustedError wraps the last underlying error after the retry
// policy ran out of attempts.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// NewRetriesExhaustedError creates a RetriesExhaustedError carrying the
// attempt count and the final failure.
func NewRetriesExhaustedError(attempts int, err error) *RetriesExhaustedError {
	return &RetriesExhaustedError{Attempts: attempts, Err: err}
}

// IsRetriesExhausted checks if an error is or wraps a RetriesExhaustedError.
func IsRetriesExhausted(err error) bool {
	var e *RetriesExhaustedError
	return errors.As(err, &e)
}

// TaskTimeoutError indicates the task's deadline expired while it was in
// flight. Not retried; a fresh task must be submitted.
type TaskTimeoutError struct {
	TaskID string
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s deadline exceeded", e.TaskID)
}

// NewTaskTimeoutError creates a TaskTimeoutError.
func NewTaskTimeoutError(taskID string) *TaskTimeoutError {
	return &TaskTimeoutError{TaskID: taskID}
}

// IsTaskTimeout checks if an error is or wraps a TaskTimeoutError.
func IsTaskTimeout(err error) bool {
	var e *TaskTimeoutError
	return errors.As(err, &e)
}

// DuplicateServiceError indicates a registration attempt for a service id
// that is already present. This is an integration error and surfaces
// immediately.
type DuplicateServiceError struct {
	ServiceID string
}

func (e *DuplicateServiceError) Error() string {
	return fmt.Sprintf("service %s already registered", e.ServiceID)
}

// NewDuplicateServiceError creates a DuplicateServiceError.
func NewDuplicateServiceError(id string) *DuplicateServiceError {
	return &DuplicateServiceError{ServiceID: id}
}

// IsDuplicateService checks if an error is or wraps a DuplicateServiceError.
func IsDuplicateService(err error) bool {
	var e *DuplicateServiceError
	return errors.As(err, &e)
}

// DuplicateContextError indicates an execution context already exists for a
// task id. This is a programming error and surfaces immediately.
type DuplicateContextError struct {
	TaskID string
}

func (e *DuplicateContextError) Error() string {
	return fmt.Sprintf("execution context for task %s already exists", e.TaskID)
}

// NewDuplicateContextError creates a DuplicateContextError.
func NewDuplicateContextError(taskID string) *DuplicateContextError {
	return &DuplicateContextError{TaskID: taskID}
}

// IsDuplicateContext checks if an error is or wraps a DuplicateContextError.
func IsDuplicateContext(err error) bool {
	var e *DuplicateContextError
	return errors.As(err, &e)
}

// ContextNotFoundError indicates that no live or retained execution context
// exists for a task id.
type ContextNotFoundError struct {
	TaskID string
}

func (e *ContextNotFoundError) Error() string {
	return fmt.Sprintf("execution context for task %s not found", e.TaskID)
}

// NewContextNotFoundError creates a ContextNotFoundError.
func NewContextNotFoundError(taskID string) *ContextNotFoundError {
	return &ContextNotFoundError{TaskID: taskID}
}

// IsContextNotFound checks if an error is or wraps a ContextNotFoundError.
func IsContextNotFound(err error) bool {
	var e *ContextNotFoundError
	return errors.As(err, &e)
}

// ErrShuttingDown is returned for tasks submitted after the orchestrator
// stopped accepting work.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// ErrorCode maps an error to its stable taxonomy name. The code is what the
// gateway returns in the error field and what events carry; callers must not
// parse error strings.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsTaskValidation(err):
		return "TaskValidationError"
	case IsRetriesExhausted(err):
		return "RetriesExhaustedError"
	case IsServiceNotFound(err):
		return "ServiceNotFoundError"
	case IsWorkflowNotFound(err):
		return "WorkflowNotFoundError"
	case IsInvalidWorkflow(err):
		return "InvalidWorkflowError"
	case IsTaskTimeout(err):
		return "TaskTimeoutError"
	case IsDuplicateService(err):
		return "DuplicateServiceError"
	case IsDuplicateContext(err):
		return "DuplicateContextError"
	case IsContextNotFound(err):
		return "ContextNotFoundError"
	case IsServiceExecution(err):
		return "ServiceExecutionError"
	case errors.Is(err, ErrShuttingDown):
		return "ShuttingDownError"
	default:
		return "InternalError"
	}
}
