package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"conductor/internal/api"
	"conductor/internal/events"
	"conductor/internal/execution"
	"conductor/internal/registry"
	"conductor/internal/retry"
	"conductor/internal/template"
	"conductor/pkg/logging"
)

// Executor performs topological workflow execution: steps run as soon as
// their dependencies are satisfied, independent steps run concurrently, and
// a step's output becomes available to dependents under its id.
type Executor struct {
	registry *registry.Registry
	contexts *execution.Manager
	retrier  *retry.Manager
	engine   *template.Engine
	bus      *events.Bus
	policy   retry.Policy
}

// NewExecutor creates a workflow executor. The retry policy applies to every
// step's service call.
func NewExecutor(reg *registry.Registry, contexts *execution.Manager, retrier *retry.Manager, bus *events.Bus, policy retry.Policy) *Executor {
	return &Executor{
		registry: reg,
		contexts: contexts,
		retrier:  retrier,
		engine:   template.New(),
		bus:      bus,
		policy:   policy,
	}
}

// runState tracks one execution's shared state across waves. Guarded by mu:
// steps within a wave complete concurrently.
type runState struct {
	mu      sync.Mutex
	results map[string]interface{} // step id -> output (or unavailable sentinel)
	failed  map[string]error       // step id -> failure
	skipped map[string]bool        // step id -> skipped because a dependency failed
}

// Execute runs a workflow for the given task. The returned status is
// Succeeded, PartiallyFailed (best-effort with failures) or Failed
// (fail-fast, first failure aborts the remaining steps). The error is
// non-nil only for Failed.
func (e *Executor) Execute(ctx context.Context, wf *api.Workflow, task api.Task) (map[string]interface{}, api.TaskStatus, error) {
	g, err := buildGraph(wf)
	if err != nil {
		// Stored definitions were validated at registration; reaching this
		// means the caller bypassed the manager.
		return nil, api.TaskFailed, err
	}

	logging.Debug("WorkflowExecutor", "executing workflow %s for task %s (%d steps, %d waves)",
		wf.ID, task.ID, len(wf.Steps), len(g.waves))
	e.bus.EmitTask(events.EventWorkflowStarted, task.ID, map[string]interface{}{
		"workflowId": wf.ID,
	})

	run := &runState{
		results: make(map[string]interface{}, len(wf.Steps)),
		failed:  make(map[string]error),
		skipped: make(map[string]bool),
	}
	policy := wf.Policy()

	var firstErr error
waves:
	for _, wave := range g.waves {
		group, waveCtx := errgroup.WithContext(ctx)

		for _, stepID := range wave {
			step := g.steps[stepID]

			if dep, blocked := e.blockedBy(run, step); blocked {
				// A dependency failed or was skipped: under best-effort the
				// branch is pruned without a usage record. Under fail-fast
				// execution never gets here, the run aborts first.
				e.markSkipped(task, wf, step, dep, run)
				continue
			}

			group.Go(func() error {
				err := e.runStep(waveCtx, wf, task, step, run)
				if err != nil && policy == api.FailFast {
					// Cancel the rest of the wave and stop scheduling.
					return err
				}
				return nil
			})
		}

		if err := group.Wait(); err != nil {
			firstErr = err
			break waves
		}
	}

	status, err := e.finish(task, wf, run, policy, firstErr)
	return e.aggregate(wf, run, status), status, err
}

// blockedBy reports whether a step cannot run because a dependency failed or
// was skipped, and names the blocking dependency.
func (e *Executor) blockedBy(run *runState, step api.WorkflowStep) (string, bool) {
	run.mu.Lock()
	defer run.mu.Unlock()
	for _, dep := range step.DependsOn {
		if _, ok := run.failed[dep]; ok {
			return dep, true
		}
		if run.skipped[dep] {
			return dep, true
		}
	}
	return "", false
}

func (e *Executor) markSkipped(task api.Task, wf *api.Workflow, step api.WorkflowStep, blockedBy string, run *runState) {
	run.mu.Lock()
	run.skipped[step.ID] = true
	run.results[step.ID] = api.UnavailableResult
	run.mu.Unlock()

	// Skipped steps get a step record but no usage record: the service was
	// never invoked.
	if err := e.contexts.AddExecutionStep(task.ID, api.StepRecord{
		Step:    step.ID,
		Outcome: api.StepSkipped,
	}); err != nil {
		logging.Warn("WorkflowExecutor", "failed to record skipped step %s: %v", step.ID, err)
	}
	e.bus.EmitTask(events.EventStepSkipped, task.ID, map[string]interface{}{
		"workflowId": wf.ID,
		"stepId":     step.ID,
		"blockedBy":  blockedBy,
	})
	logging.Debug("WorkflowExecutor", "step %s skipped, dependency %s unavailable", step.ID, blockedBy)
}

// runStep binds the step input, selects a service, and executes it through
// the retry manager, recording trace entries and events along the way.
func (e *Executor) runStep(ctx context.Context, wf *api.Workflow, task api.Task, step api.WorkflowStep, run *runState) error {
	e.bus.EmitTask(events.EventStepStarted, task.ID, map[string]interface{}{
		"workflowId": wf.ID,
		"stepId":     step.ID,
		"service":    step.Service,
	})

	started := time.Now()
	output, svcID, err := e.executeStep(ctx, task, step, run)
	duration := time.Since(started)

	if err != nil {
		run.mu.Lock()
		run.failed[step.ID] = err
		run.results[step.ID] = api.UnavailableResult
		run.mu.Unlock()

		if svcID != "" {
			// The service actually ran and failed; steps that never reached
			// a service (no match, bad binding) leave no usage record.
			if uerr := e.contexts.AddServiceUsage(task.ID, svcID, step.Service, duration, false); uerr != nil {
				logging.Warn("WorkflowExecutor", "failed to record usage for step %s: %v", step.ID, uerr)
			}
		}
		if serr := e.contexts.AddExecutionStep(task.ID, api.StepRecord{
			Step:       step.ID,
			DurationMs: duration.Milliseconds(),
			Outcome:    api.StepFailed,
		}); serr != nil {
			logging.Warn("WorkflowExecutor", "failed to record step %s: %v", step.ID, serr)
		}
		e.bus.EmitTask(events.EventStepFailed, task.ID, map[string]interface{}{
			"workflowId": wf.ID,
			"stepId":     step.ID,
			"error":      err.Error(),
		})
		logging.Error("WorkflowExecutor", err, "step %s of workflow %s failed", step.ID, wf.ID)
		return fmt.Errorf("step %s failed: %w", step.ID, err)
	}

	run.mu.Lock()
	run.results[step.ID] = output
	run.mu.Unlock()

	if uerr := e.contexts.AddServiceUsage(task.ID, svcID, step.Service, duration, true); uerr != nil {
		logging.Warn("WorkflowExecutor", "failed to record usage for step %s: %v", step.ID, uerr)
	}
	if serr := e.contexts.AddExecutionStep(task.ID, api.StepRecord{
		Step:       step.ID,
		DurationMs: duration.Milliseconds(),
		Outcome:    api.StepCompleted,
	}); serr != nil {
		logging.Warn("WorkflowExecutor", "failed to record step %s: %v", step.ID, serr)
	}
	e.bus.EmitTask(events.EventStepCompleted, task.ID, map[string]interface{}{
		"workflowId": wf.ID,
		"stepId":     step.ID,
		"serviceId":  svcID,
	})
	return nil
}

// executeStep performs the bind-select-execute sequence for one step. The
// returned service id is empty when no service was ever invoked.
func (e *Executor) executeStep(ctx context.Context, task api.Task, step api.WorkflowStep, run *runState) (map[string]interface{}, string, error) {
	run.mu.Lock()
	stepsView := make(map[string]interface{}, len(run.results))
	for id, out := range run.results {
		stepsView[id] = out
	}
	run.mu.Unlock()

	input, err := e.bindInput(task, step, stepsView)
	if err != nil {
		return nil, "", err
	}

	svc, err := e.resolveService(step.Service)
	if err != nil {
		return nil, "", err
	}
	svcID := svc.ID()
	e.registry.MarkUsed(svcID)

	output, err := e.retrier.Execute(ctx, task.ID, fmt.Sprintf("%s.%s", task.Workflow, step.ID),
		func(ctx context.Context) (map[string]interface{}, error) {
			out, execErr := svc.Execute(ctx, input)
			if execErr != nil {
				return nil, api.NewServiceExecutionError(svcID, step.Service, execErr)
			}
			return out, nil
		}, e.policy)
	if err != nil {
		return nil, svcID, err
	}
	return output, svcID, nil
}

func (e *Executor) bindInput(task api.Task, step api.WorkflowStep, stepsView map[string]interface{}) (map[string]interface{}, error) {
	if step.Input == nil {
		// No template: the step sees the raw task payload.
		return task.Payload, nil
	}

	bindCtx := map[string]interface{}{
		"input": task.Payload,
		"steps": stepsView,
	}
	bound, err := e.engine.Bind(step.Input, bindCtx)
	if err != nil {
		return nil, fmt.Errorf("binding input for step %s: %w", step.ID, err)
	}
	return bound.(map[string]interface{}), nil
}

// resolveService treats the step's service reference as a registered id
// first, then as a capability. Explicit ids win when both match.
func (e *Executor) resolveService(ref string) (registry.Service, error) {
	if svc, info, ok := e.registry.Get(ref); ok {
		if !info.Status.Selectable() {
			return nil, api.NewServiceNotFoundError(ref)
		}
		return svc, nil
	}
	candidates := e.registry.Select([]string{ref})
	if len(candidates) == 0 {
		return nil, api.NewServiceNotFoundError(ref)
	}
	return candidates[0], nil
}

func (e *Executor) finish(task api.Task, wf *api.Workflow, run *runState, policy api.FailurePolicy, firstErr error) (api.TaskStatus, error) {
	run.mu.Lock()
	failures := len(run.failed)
	run.mu.Unlock()

	switch {
	case firstErr != nil:
		e.bus.EmitTask(events.EventWorkflowFailed, task.ID, map[string]interface{}{
			"workflowId": wf.ID,
			"error":      firstErr.Error(),
		})
		return api.TaskFailed, firstErr

	case failures > 0:
		// Only reachable under best-effort: independent branches kept going
		// and partial results were aggregated.
		e.bus.EmitTask(events.EventWorkflowPartial, task.ID, map[string]interface{}{
			"workflowId":  wf.ID,
			"failedSteps": failures,
		})
		return api.TaskPartiallyFailed, nil

	default:
		e.bus.EmitTask(events.EventWorkflowCompleted, task.ID, map[string]interface{}{
			"workflowId": wf.ID,
		})
		return api.TaskSucceeded, nil
	}
}

// aggregate builds the workflow result: every attempted step's output keyed
// by step id, with the unavailable sentinel standing in for failed or
// skipped steps. Steps never attempted (fail-fast abort) are absent.
func (e *Executor) aggregate(wf *api.Workflow, run *runState, status api.TaskStatus) map[string]interface{} {
	run.mu.Lock()
	defer run.mu.Unlock()

	steps := make(map[string]interface{}, len(run.results))
	for id, out := range run.results {
		steps[id] = out
	}
	return map[string]interface{}{
		"workflow": wf.ID,
		"status":   string(status),
		"steps":    steps,
	}
}
