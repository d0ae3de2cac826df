package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"conductor/internal/events"
	"conductor/internal/execution"
	"conductor/internal/orchestrator"
	"conductor/internal/registry"
	"conductor/internal/workflow"
	"conductor/pkg/logging"
)

// Server is the HTTP gateway: the single outer surface of the engine. It
// translates HTTP requests into orchestrator calls and engine events into a
// websocket stream.
type Server struct {
	orch      *orchestrator.Orchestrator
	registry  *registry.Registry
	workflows *workflow.Manager
	contexts  *execution.Manager
	bus       *events.Bus

	httpServer *http.Server
}

// NewServer builds the gateway for the given engine components, listening on
// addr once Run is called.
func NewServer(addr string, orch *orchestrator.Orchestrator, reg *registry.Registry, workflows *workflow.Manager, contexts *execution.Manager, bus *events.Bus) *Server {
	s := &Server{
		orch:      orch,
		registry:  reg,
		workflows: workflows,
		contexts:  contexts,
		bus:       bus,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orchestrate", s.handleOrchestrate)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleTask)
	mux.HandleFunc("GET /api/services", s.handleServices)
	mux.HandleFunc("GET /api/workflows", s.handleWorkflows)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves HTTP until ctx is cancelled, then shuts the listener down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Gateway", "listening on %s", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logging.Info("Gateway", "listener stopped")
	return nil
}
