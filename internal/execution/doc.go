// Package execution implements the per-task execution context: the ordered
// trace of steps and service usages, the task status, and the aggregates
// derived from them.
//
// Contexts are created at task submission and mutated only by the
// orchestration pipeline processing that task. On reaching a terminal status
// a context becomes an immutable snapshot held in a bounded retention cache,
// so completed tasks stay queryable until evicted by size or age. Running
// tasks are never evicted.
package execution
