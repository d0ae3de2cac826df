package app

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"conductor/internal/config"
	"conductor/internal/events"
	"conductor/internal/execution"
	"conductor/internal/gateway"
	"conductor/internal/orchestrator"
	"conductor/internal/plugin"
	"conductor/internal/plugin/builtin"
	"conductor/internal/registry"
	"conductor/internal/retry"
	"conductor/internal/state"
	"conductor/internal/workflow"
	"conductor/pkg/logging"
)

// App owns the engine's component graph and its lifecycle.
type App struct {
	cfg config.Config

	bus       *events.Bus
	states    *state.Manager
	registry  *registry.Registry
	contexts  *execution.Manager
	workflows *workflow.Manager
	loader    *plugin.Loader
	orch      *orchestrator.Orchestrator
	gateway   *gateway.Server
}

// New wires the engine from configuration. Nothing runs until Run is called.
func New(cfg config.Config) (*App, error) {
	bus := events.NewBus()
	states := state.NewManager()
	reg := registry.NewRegistry(bus)

	contexts, err := execution.NewManager(execution.RetentionConfig{
		MaxEntries: cfg.Contexts.MaxRetained,
		MaxAge:     cfg.Contexts.MaxAge.Duration,
	}, states)
	if err != nil {
		return nil, err
	}

	workflows := workflow.NewManager(bus)
	retrier := retry.NewManager(bus, nil)
	orch := orchestrator.New(orchestrator.Options{
		Bus:       bus,
		Registry:  reg,
		Workflows: workflows,
		Contexts:  contexts,
		Retrier:   retrier,
		RetryPolicy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Duration,
			MaxDelay:    cfg.Retry.MaxDelay.Duration,
		},
	})

	loader := plugin.NewLoader(reg, cfg.Plugins.InitTimeout.Duration)
	builtin.Register(loader)

	gw := gateway.NewServer(cfg.Gateway.Addr(), orch, reg, workflows, contexts, bus)

	return &App{
		cfg:       cfg,
		bus:       bus,
		states:    states,
		registry:  reg,
		contexts:  contexts,
		workflows: workflows,
		loader:    loader,
		orch:      orch,
		gateway:   gw,
	}, nil
}

// Run loads definitions, starts every long-running component, and blocks
// until ctx is cancelled. Shutdown then drains in-flight tasks within the
// configured grace period.
func (a *App) Run(ctx context.Context) error {
	defer a.contexts.Close()

	if _, err := a.workflows.LoadDirectory(a.cfg.Workflows.Directory); err != nil {
		return err
	}
	if _, err := a.loader.Load(ctx, a.cfg.Plugins.Manifest); err != nil {
		return err
	}

	g, runCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.gateway.Run(runCtx)
	})
	g.Go(func() error {
		a.registry.RunHealthMonitor(runCtx, registry.HealthConfig{
			Interval:         a.cfg.Registry.HealthInterval.Duration,
			FailureThreshold: a.cfg.Registry.FailureThreshold,
			ProbeTimeout:     a.cfg.Registry.ProbeTimeout.Duration,
		})
		return nil
	})
	g.Go(func() error {
		a.runStatePurge(runCtx)
		return nil
	})
	if a.cfg.Workflows.Watch {
		if _, err := os.Stat(a.cfg.Workflows.Directory); err == nil {
			g.Go(func() error {
				return a.workflows.Watch(runCtx, a.cfg.Workflows.Directory)
			})
		}
	}
	if a.cfg.Plugins.Watch {
		if _, err := os.Stat(a.cfg.Plugins.Manifest); err == nil {
			g.Go(func() error {
				return a.loader.Watch(runCtx, a.cfg.Plugins.Manifest)
			})
		}
	}

	logging.Info("App", "engine started")
	runErr := g.Wait()

	grace := a.cfg.Shutdown.GracePeriod.Duration
	if grace <= 0 {
		grace = 15 * time.Second
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := a.orch.Shutdown(drainCtx); err != nil {
		logging.Warn("App", "shutdown did not drain cleanly: %v", err)
	}

	if runErr != nil && !isCancellation(runErr) {
		return runErr
	}
	logging.Info("App", "engine stopped")
	return nil
}

func (a *App) runStatePurge(ctx context.Context) {
	interval := a.cfg.State.PurgeInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if purged := a.states.PurgeExpired(); purged > 0 {
				logging.Debug("App", "purged %d expired state entries", purged)
			}
		}
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
