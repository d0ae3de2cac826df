// Package workflow implements multi-step task execution: validated workflow
// definitions, dependency-ordered scheduling, and result aggregation.
//
// Definitions are registered through the Manager, which validates the step
// DAG once at registration. The Executor then runs steps in topological
// waves: independent steps execute concurrently, each step's output becomes
// available to its dependents through template binding, and the workflow's
// failure policy decides whether a failed step aborts the run (fail-fast) or
// prunes only the failed branch (best-effort).
package workflow
