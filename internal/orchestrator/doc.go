// Package orchestrator ties the engine together: it is the single entry
// point for task submission and the owner of the task lifecycle.
//
// A submitted task is validated, given an execution context, and routed
// either to the workflow executor or to a single service selected by id or
// capability. Every execution path closes the context with a terminal
// status and a lifecycle event, including the shutdown path, which drains
// in-flight tasks and force-fails stragglers after the grace period.
package orchestrator
