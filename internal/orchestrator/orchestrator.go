package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"conductor/internal/api"
	"conductor/internal/events"
	"conductor/internal/execution"
	"conductor/internal/registry"
	"conductor/internal/retry"
	"conductor/internal/workflow"
	"conductor/pkg/logging"
)

// Options carries the collaborators an Orchestrator coordinates. All fields
// are required except RetryPolicy, which defaults to retry.DefaultPolicy.
type Options struct {
	Bus         *events.Bus
	Registry    *registry.Registry
	Workflows   *workflow.Manager
	Contexts    *execution.Manager
	Retrier     *retry.Manager
	RetryPolicy retry.Policy
}

// Orchestrator is the task intake pipeline: it validates submissions, opens
// an execution context, routes to a workflow or a single service, and closes
// the context with a terminal status. It is the only component that mutates
// task lifecycle state.
type Orchestrator struct {
	bus       *events.Bus
	registry  *registry.Registry
	workflows *workflow.Manager
	contexts  *execution.Manager
	retrier   *retry.Manager
	executor  *workflow.Executor
	validate  *validator.Validate
	policy    retry.Policy

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// New creates an orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	policy := opts.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy
	}
	return &Orchestrator{
		bus:       opts.Bus,
		registry:  opts.Registry,
		workflows: opts.Workflows,
		contexts:  opts.Contexts,
		retrier:   opts.Retrier,
		executor:  workflow.NewExecutor(opts.Registry, opts.Contexts, opts.Retrier, opts.Bus, policy),
		validate:  validator.New(),
		policy:    policy,
	}
}

// ProcessTask runs one task to completion and returns its result. The
// returned error is non-nil only when the submission was never accepted
// (shutdown in progress, validation failure, duplicate id); once a context
// exists, failures are reported through TaskResult.Error and the task's
// terminal status instead.
func (o *Orchestrator) ProcessTask(ctx context.Context, task api.Task, meta api.TaskMeta) (api.TaskResult, error) {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return api.TaskResult{}, api.ErrShuttingDown
	}
	o.inflight.Add(1)
	o.mu.Unlock()
	defer o.inflight.Done()

	if err := o.validate.Struct(task); err != nil {
		return api.TaskResult{}, api.NewTaskValidationError(err.Error())
	}
	if err := o.contexts.CreateContext(task.ID, meta); err != nil {
		return api.TaskResult{}, err
	}

	logging.Info("Orchestrator", "task %s accepted (operation=%s workflow=%q)", task.ID, task.Operation, task.Workflow)
	o.bus.EmitTask(events.EventTaskStarted, task.ID, map[string]interface{}{
		"operation": task.Operation,
		"workflow":  task.Workflow,
	})
	if err := o.contexts.SetStatus(task.ID, api.TaskRunning); err != nil {
		return api.TaskResult{}, err
	}

	result, status, err := o.execute(ctx, task)
	return o.settle(task, result, status, err), nil
}

// execute routes the task and enforces its deadline. The execution itself
// runs in a goroutine so a service that ignores cancellation cannot wedge
// the pipeline; a late result after timeout is discarded.
func (o *Orchestrator) execute(ctx context.Context, task api.Task) (map[string]interface{}, api.TaskStatus, error) {
	if task.Deadline != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, *task.Deadline)
		defer cancel()
	}

	type outcome struct {
		result map[string]interface{}
		status api.TaskStatus
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, status, err := o.route(ctx, task)
		done <- outcome{result, status, err}
	}()

	select {
	case out := <-done:
		return out.result, out.status, out.err
	case <-ctx.Done():
		if task.Deadline != nil && !time.Now().Before(*task.Deadline) {
			return nil, api.TaskFailed, api.NewTaskTimeoutError(task.ID)
		}
		return nil, api.TaskFailed, ctx.Err()
	}
}

// route dispatches to workflow or single-service execution.
func (o *Orchestrator) route(ctx context.Context, task api.Task) (map[string]interface{}, api.TaskStatus, error) {
	if task.Workflow != "" {
		wf, ok := o.workflows.Get(task.Workflow)
		if !ok {
			return nil, api.TaskFailed, api.NewWorkflowNotFoundError(task.Workflow)
		}
		return o.executor.Execute(ctx, wf, task)
	}
	return o.executeSingle(ctx, task)
}

// executeSingle resolves one service for the task and invokes it through the
// retry manager. An explicit service id wins over capability selection; no
// match fails immediately without consuming retry attempts.
func (o *Orchestrator) executeSingle(ctx context.Context, task api.Task) (map[string]interface{}, api.TaskStatus, error) {
	svc, err := o.resolve(task)
	if err != nil {
		return nil, api.TaskFailed, err
	}
	svcID := svc.ID()
	o.registry.MarkUsed(svcID)

	started := time.Now()
	result, err := o.retrier.Execute(ctx, task.ID, task.Operation,
		func(ctx context.Context) (map[string]interface{}, error) {
			out, execErr := svc.Execute(ctx, task.Payload)
			if execErr != nil {
				return nil, api.NewServiceExecutionError(svcID, task.Operation, execErr)
			}
			return out, nil
		}, o.policy)
	duration := time.Since(started)

	if uerr := o.contexts.AddServiceUsage(task.ID, svcID, task.Operation, duration, err == nil); uerr != nil {
		logging.Warn("Orchestrator", "failed to record usage for task %s: %v", task.ID, uerr)
	}
	outcome := api.StepCompleted
	if err != nil {
		outcome = api.StepFailed
	}
	if serr := o.contexts.AddExecutionStep(task.ID, api.StepRecord{
		Step:       task.Operation,
		DurationMs: duration.Milliseconds(),
		Outcome:    outcome,
	}); serr != nil {
		logging.Warn("Orchestrator", "failed to record step for task %s: %v", task.ID, serr)
	}

	if err != nil {
		return nil, api.TaskFailed, err
	}
	return result, api.TaskSucceeded, nil
}

func (o *Orchestrator) resolve(task api.Task) (registry.Service, error) {
	if task.Service != "" {
		svc, info, ok := o.registry.Get(task.Service)
		if !ok || !info.Status.Selectable() {
			return nil, api.NewServiceNotFoundError(task.Service)
		}
		return svc, nil
	}
	candidates := o.registry.Select([]string{task.Operation})
	if len(candidates) == 0 {
		return nil, api.NewServiceNotFoundError(task.Operation)
	}
	return candidates[0], nil
}

// settle records the terminal status, emits the lifecycle event, and shapes
// the task result.
func (o *Orchestrator) settle(task api.Task, result map[string]interface{}, status api.TaskStatus, err error) api.TaskResult {
	if serr := o.contexts.SetStatus(task.ID, status); serr != nil {
		logging.Warn("Orchestrator", "failed to finalize task %s: %v", task.ID, serr)
	}

	res := api.TaskResult{TaskID: task.ID, Status: status, Result: result}
	if err != nil {
		res.Error = api.ErrorCode(err)
		o.bus.EmitTask(events.EventTaskFailed, task.ID, map[string]interface{}{
			"status": string(status),
			"error":  res.Error,
		})
		logging.Error("Orchestrator", err, "task %s failed", task.ID)
		return res
	}

	o.bus.EmitTask(events.EventTaskCompleted, task.ID, map[string]interface{}{
		"status": string(status),
	})
	logging.Info("Orchestrator", "task %s finished with status %s", task.ID, status)
	return res
}

// Shutdown drains the pipeline: new submissions are rejected immediately,
// in-flight tasks get until ctx expires to finish, and whatever is still
// running after that is force-failed so no context is left dangling.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.draining = true
	o.mu.Unlock()
	logging.Info("Orchestrator", "shutdown started, draining in-flight tasks")

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("Orchestrator", "all in-flight tasks drained")
		return nil
	case <-ctx.Done():
	}

	remaining := o.contexts.LiveTasks()
	for _, taskID := range remaining {
		if err := o.contexts.SetStatus(taskID, api.TaskFailed); err != nil {
			logging.Warn("Orchestrator", "failed to force-fail task %s: %v", taskID, err)
			continue
		}
		o.bus.EmitTask(events.EventTaskFailed, taskID, map[string]interface{}{
			"status": string(api.TaskFailed),
			"error":  "ShutdownError",
		})
	}
	logging.Warn("Orchestrator", "shutdown grace expired, force-failed %d task(s)", len(remaining))
	return ctx.Err()
}
