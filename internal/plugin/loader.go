package plugin

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"conductor/internal/registry"
	"conductor/pkg/logging"
)

// Builder constructs a service from its manifest configuration. Builders are
// registered per plugin type; the manifest names the type and supplies the
// id and config.
type Builder func(id string, cfg map[string]interface{}) (registry.Service, error)

// manifest is the on-disk plugin declaration format.
type manifest struct {
	Plugins []pluginEntry `yaml:"plugins"`
}

type pluginEntry struct {
	ID     string                 `yaml:"id"`
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Loader turns a plugin manifest into registered services. Each manifest
// entry is built by its type's Builder, initialized with a bounded timeout,
// and registered. A plugin that fails to build, initialize, or register is
// logged and skipped so one broken plugin cannot take down the rest.
type Loader struct {
	mu       sync.RWMutex
	builders map[string]Builder
	loaded   map[string]bool // service ids registered from the manifest

	registry    *registry.Registry
	initTimeout time.Duration
}

// NewLoader creates a loader that registers built services with reg.
// initTimeout bounds each plugin's Initialize call; zero means 10 seconds.
func NewLoader(reg *registry.Registry, initTimeout time.Duration) *Loader {
	if initTimeout <= 0 {
		initTimeout = 10 * time.Second
	}
	return &Loader{
		builders:    make(map[string]Builder),
		loaded:      make(map[string]bool),
		registry:    reg,
		initTimeout: initTimeout,
	}
}

// RegisterBuilder makes a plugin type available to manifests. Registering a
// type again replaces the previous builder.
func (l *Loader) RegisterBuilder(pluginType string, builder Builder) {
	l.mu.Lock()
	l.builders[pluginType] = builder
	l.mu.Unlock()
	logging.Debug("PluginLoader", "registered builder for plugin type %s", pluginType)
}

// Load reads the manifest at path and registers its plugins. Services loaded
// by a previous call that reappear in the manifest are replaced; services
// that no longer appear are unregistered. Returns the number of plugins
// registered.
func (l *Loader) Load(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Info("PluginLoader", "no plugin manifest at %s, skipping", path)
			return 0, nil
		}
		return 0, fmt.Errorf("reading plugin manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return 0, fmt.Errorf("parsing plugin manifest %s: %w", path, err)
	}

	current := make(map[string]bool, len(m.Plugins))
	loaded := 0
	for _, entry := range m.Plugins {
		if entry.ID == "" || entry.Type == "" {
			logging.Warn("PluginLoader", "skipping manifest entry with missing id or type")
			continue
		}
		if err := l.loadOne(ctx, entry); err != nil {
			logging.Error("PluginLoader", err, "skipping plugin %s", entry.ID)
			continue
		}
		current[entry.ID] = true
		loaded++
	}

	l.retireMissing(current)

	logging.Info("PluginLoader", "loaded %d plugin(s) from %s", loaded, path)
	return loaded, nil
}

func (l *Loader) loadOne(ctx context.Context, entry pluginEntry) error {
	l.mu.RLock()
	builder, ok := l.builders[entry.Type]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown plugin type %q", entry.Type)
	}

	svc, err := builder(entry.ID, entry.Config)
	if err != nil {
		return fmt.Errorf("building plugin: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, l.initTimeout)
	defer cancel()
	if err := svc.Initialize(initCtx); err != nil {
		return fmt.Errorf("initializing plugin: %w", err)
	}

	// Reloads replace in place: drop the old registration first.
	l.mu.Lock()
	wasLoaded := l.loaded[entry.ID]
	l.mu.Unlock()
	if wasLoaded {
		if err := l.registry.Unregister(entry.ID); err != nil {
			logging.Warn("PluginLoader", "unregistering stale plugin %s: %v", entry.ID, err)
		}
	}

	if err := l.registry.Register(svc); err != nil {
		return fmt.Errorf("registering plugin: %w", err)
	}

	l.mu.Lock()
	l.loaded[entry.ID] = true
	l.mu.Unlock()
	logging.Info("PluginLoader", "loaded plugin %s (type %s)", entry.ID, entry.Type)
	return nil
}

// retireMissing unregisters previously loaded services that the manifest no
// longer declares. Services registered outside the loader are untouched.
func (l *Loader) retireMissing(current map[string]bool) {
	l.mu.Lock()
	var retired []string
	for id := range l.loaded {
		if !current[id] {
			retired = append(retired, id)
			delete(l.loaded, id)
		}
	}
	l.mu.Unlock()

	for _, id := range retired {
		if err := l.registry.Unregister(id); err != nil {
			logging.Warn("PluginLoader", "unregistering removed plugin %s: %v", id, err)
			continue
		}
		logging.Info("PluginLoader", "unregistered plugin %s, removed from manifest", id)
	}
}

// Watch reloads the manifest whenever it changes, until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating plugin watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watching plugin manifest %s: %w", path, err)
	}
	logging.Info("PluginLoader", "watching %s for manifest changes", path)

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
			logging.Debug("PluginLoader", "manifest change detected: %s", event.Name)
			if _, err := l.Load(ctx, path); err != nil {
				logging.Error("PluginLoader", err, "manifest reload failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("PluginLoader", err, "plugin watcher error")
		}
	}
}
