// Package logging provides the structured logging facility used by every
// conductor subsystem.
//
// The package wraps log/slog with a subsystem-tagged API so call sites stay
// terse:
//
//	logging.Info("Registry", "registered service %s", id)
//	logging.Error("WorkflowExecutor", err, "step %s failed", stepID)
//
// Init must be called once during bootstrap. Components never construct their
// own loggers; the subsystem string is the unit of filtering and attribution.
package logging
