package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/history"
	"github.com/BaSui01/ticketflow/types"
)

// WorkflowService accepts and controls workflow runs.
type WorkflowService interface {
	Submit(req types.WorkflowRequest) (string, error)
	Cancel(runID string) bool
	ActiveRuns() int
}

// RunHistory reads past runs.
type RunHistory interface {
	Get(ctx context.Context, runID string) (*history.WorkflowRun, error)
	List(ctx context.Context, limit int) ([]history.WorkflowRun, error)
}

// WorkflowHandler serves workflow submission, cancellation, and history.
type WorkflowHandler struct {
	service WorkflowService
	history RunHistory
	logger  *zap.Logger
}

// NewWorkflowHandler creates the workflow handler. history may be nil when
// the run history store is disabled.
func NewWorkflowHandler(service WorkflowService, history RunHistory, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		service: service,
		history: history,
		logger:  logger.With(zap.String("handler", "workflow")),
	}
}

// HandleSubmit accepts a feature request and starts a run.
// POST /api/workflows
func (h *WorkflowHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.WorkflowRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	runID, err := h.service.Submit(req)
	if err != nil {
		if terr, ok := err.(*types.Error); ok {
			WriteError(w, terr, h.logger)
		} else {
			WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, err.Error(), h.logger)
		}
		return
	}

	h.logger.Info("workflow submitted",
		zap.String("run_id", runID),
		zap.String("issue_type", string(req.IssueType)),
	)
	WriteAccepted(w, map[string]string{"run_id": runID})
}

// HandleCancel requests cancellation of an active run.
// DELETE /api/workflows/{run_id}
func (h *WorkflowHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run_id is required", h.logger)
		return
	}

	if !h.service.Cancel(runID) {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "no active run with that id", h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"run_id": runID, "status": "cancelling"})
}

// HandleGet returns one past run with its attempt log.
// GET /api/workflows/{run_id}
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "run history is disabled", h.logger)
		return
	}

	runID := r.PathValue("run_id")
	run, err := h.history.Get(r.Context(), runID)
	if err != nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "run not found", h.logger)
		return
	}
	WriteSuccess(w, run)
}

// HandleList returns recent runs, newest first.
// GET /api/workflows
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "run history is disabled", h.logger)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be an integer between 1 and 200", h.logger)
			return
		}
		limit = parsed
	}

	runs, err := h.history.List(r.Context(), limit)
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "listing runs failed", h.logger)
		return
	}
	WriteSuccess(w, map[string]any{
		"runs":        runs,
		"active_runs": h.service.ActiveRuns(),
	})
}
