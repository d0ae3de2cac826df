package workflow

import (
	"fmt"

	"conductor/internal/api"
)

// graph is the validated dependency structure of one workflow. Steps form a
// DAG; validation rejects duplicate ids, dangling or forward dependsOn
// references, and cycles before anything is stored.
type graph struct {
	steps map[string]api.WorkflowStep
	waves [][]string // execution order: steps in the same wave are independent
}

// buildGraph validates a workflow definition and computes its execution
// waves. Any violation returns an InvalidWorkflowError and no partial state.
func buildGraph(wf *api.Workflow) (*graph, error) {
	if len(wf.Steps) == 0 {
		return nil, api.NewInvalidWorkflowError(wf.ID, "workflow has no steps")
	}

	steps := make(map[string]api.WorkflowStep, len(wf.Steps))
	defined := make(map[string]bool, len(wf.Steps))

	for _, step := range wf.Steps {
		if step.ID == "" {
			return nil, api.NewInvalidWorkflowError(wf.ID, "step with empty id")
		}
		if defined[step.ID] {
			return nil, api.NewInvalidWorkflowError(wf.ID, fmt.Sprintf("duplicate step id %q", step.ID))
		}
		if step.Service == "" {
			return nil, api.NewInvalidWorkflowError(wf.ID, fmt.Sprintf("step %q has no service", step.ID))
		}
		// dependsOn must reference steps defined earlier in the workflow,
		// which also rules out self-references and forward edges.
		for _, dep := range step.DependsOn {
			if !defined[dep] {
				return nil, api.NewInvalidWorkflowError(wf.ID,
					fmt.Sprintf("step %q depends on %q which is not defined before it", step.ID, dep))
			}
		}
		defined[step.ID] = true
		steps[step.ID] = step
	}

	waves, err := topoWaves(wf)
	if err != nil {
		return nil, err
	}
	return &graph{steps: steps, waves: waves}, nil
}

// topoWaves runs Kahn's algorithm, grouping steps into waves of equal depth.
// Steps in the same wave have no edges between them and may run concurrently.
// The earlier-definition rule already forbids cycles for parsed definitions;
// the explicit check keeps programmatically assembled workflows honest.
func topoWaves(wf *api.Workflow) ([][]string, error) {
	indegree := make(map[string]int, len(wf.Steps))
	dependents := make(map[string][]string, len(wf.Steps))

	for _, step := range wf.Steps {
		indegree[step.ID] = len(step.DependsOn)
		for _, dep := range step.DependsOn {
			dependents[dep] = append(dependents[dep], step.ID)
		}
	}

	var ready []string
	for _, step := range wf.Steps {
		if indegree[step.ID] == 0 {
			ready = append(ready, step.ID)
		}
	}

	var waves [][]string
	resolved := 0
	for len(ready) > 0 {
		wave := ready
		ready = nil
		waves = append(waves, wave)
		resolved += len(wave)

		for _, id := range wave {
			for _, dependent := range dependents[id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					ready = append(ready, dependent)
				}
			}
		}
	}

	if resolved != len(wf.Steps) {
		return nil, api.NewInvalidWorkflowError(wf.ID, "dependency graph contains a cycle")
	}
	return waves, nil
}
