package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"conductor/internal/api"
	"conductor/internal/events"
	"conductor/pkg/logging"
)

// Manager stores validated workflow definitions. Definitions are static
// configuration: loaded at startup (or on file change), validated once, and
// treated as read-only at execution time.
type Manager struct {
	mu        sync.RWMutex
	workflows map[string]*api.Workflow

	validate *validator.Validate
	bus      *events.Bus
}

// NewManager creates an empty workflow manager.
func NewManager(bus *events.Bus) *Manager {
	return &Manager{
		workflows: make(map[string]*api.Workflow),
		validate:  validator.New(),
		bus:       bus,
	}
}

// Register validates a workflow's DAG and stores it. An invalid definition
// is rejected with InvalidWorkflowError and leaves no partial state.
// Registering an id again replaces the previous definition, which is how
// file reloads roll out changes.
func (m *Manager) Register(wf *api.Workflow) error {
	if err := m.validate.Struct(wf); err != nil {
		return api.NewInvalidWorkflowError(wf.ID, err.Error())
	}
	if _, err := buildGraph(wf); err != nil {
		return err
	}

	stored := *wf
	stored.Steps = append([]api.WorkflowStep(nil), wf.Steps...)

	m.mu.Lock()
	m.workflows[stored.ID] = &stored
	m.mu.Unlock()

	logging.Info("WorkflowManager", "registered workflow %s (%d steps, %s)", stored.ID, len(stored.Steps), stored.Policy())
	m.bus.Emit(events.EventWorkflowRegistered, map[string]interface{}{
		"workflowId": stored.ID,
		"steps":      len(stored.Steps),
	})
	return nil
}

// Get returns a workflow definition by id.
func (m *Manager) Get(id string) (*api.Workflow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	return wf, ok
}

// List returns all registered workflow definitions, ordered by id.
func (m *Manager) List() []api.Workflow {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]api.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, *wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every workflow definition file (*.json, *.yaml, *.yml)
// in dir and registers it. A file that fails to parse or validate is logged
// and skipped so one bad definition cannot block the rest. Returns the
// number of workflows loaded.
func (m *Manager) LoadDirectory(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Info("WorkflowManager", "no workflow directory at %s, skipping", dir)
			return 0, nil
		}
		return 0, fmt.Errorf("reading workflow directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		wf, err := parseDefinition(path)
		if err != nil {
			logging.Warn("WorkflowManager", "skipping %s: %v", path, err)
			continue
		}
		if err := m.Register(wf); err != nil {
			logging.Warn("WorkflowManager", "skipping %s: %v", path, err)
			continue
		}
		loaded++
	}

	logging.Info("WorkflowManager", "loaded %d workflow(s) from %s", loaded, dir)
	return loaded, nil
}

// Watch reloads the directory whenever a definition file changes, until ctx
// is cancelled. Re-registration replaces definitions in place; running
// executions keep the definition they started with.
func (m *Manager) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating workflow watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching workflow directory %s: %w", dir, err)
	}
	logging.Info("WorkflowManager", "watching %s for definition changes", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug("WorkflowManager", "definition change detected: %s", event.Name)
			if _, err := m.LoadDirectory(dir); err != nil {
				logging.Error("WorkflowManager", err, "reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("WorkflowManager", err, "workflow watcher error")
		}
	}
}

func parseDefinition(path string) (*api.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wf api.Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported definition format %q", filepath.Ext(path))
	}
	return &wf, nil
}
