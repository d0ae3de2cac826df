package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"conductor/internal/api"
	"conductor/pkg/logging"
)

// orchestrateRequest is the submission body for POST /api/orchestrate.
type orchestrateRequest struct {
	ID        string                 `json:"id,omitempty"`
	Operation string                 `json:"operation"`
	Service   string                 `json:"service,omitempty"`
	Workflow  string                 `json:"workflow,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	TimeoutMs int64                  `json:"timeoutMs,omitempty"`
	UserID    string                 `json:"userId,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	task := api.Task{
		ID:        req.ID,
		Operation: req.Operation,
		Service:   req.Service,
		Workflow:  req.Workflow,
		Payload:   req.Payload,
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if req.TimeoutMs > 0 {
		deadline := time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond)
		task.Deadline = &deadline
	}

	result, err := s.orch.ProcessTask(r.Context(), task, api.TaskMeta{
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, submissionStatus(err), err.Error())
		return
	}
	writeJSON(w, resultStatus(result), result)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	snap, err := s.contexts.Snapshot(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	metrics, err := s.contexts.Metrics(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task":    snap,
		"metrics": metrics,
	})
}

func (s *Server) handleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": s.registry.List(),
	})
}

func (s *Server) handleWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": s.workflows.List(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.orch.Health()
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// submissionStatus maps rejected submissions (no context was created) to
// HTTP status codes.
func submissionStatus(err error) int {
	switch {
	case errors.Is(err, api.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case api.IsTaskValidation(err):
		return http.StatusBadRequest
	case api.IsDuplicateContext(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// resultStatus maps a settled task result to an HTTP status code. The body
// always carries the full result either way.
func resultStatus(result api.TaskResult) int {
	if result.Error == "" {
		return http.StatusOK
	}
	switch result.Error {
	case "ServiceNotFoundError", "WorkflowNotFoundError":
		return http.StatusNotFound
	case "TaskTimeoutError":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Gateway", "failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
