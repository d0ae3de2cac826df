// Package api holds the shared data model and error taxonomy of the
// orchestration engine.
//
// Every subsystem (registry, workflow engine, context manager, orchestrator,
// gateway) speaks in terms of these types. Keeping them in one dependency-free
// package avoids import cycles between the components and gives external
// callers a single, stable vocabulary: Task in, TaskResult out, with
// ExecutionSnapshot/ExecutionMetrics as the observable execution record.
//
// Errors follow one convention throughout: a typed struct, a NewX constructor,
// and an errors.As-based IsX checker. ErrorCode flattens any engine error to
// its stable taxonomy name for wire responses and events.
package api
