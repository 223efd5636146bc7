package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meshagent/meshagent/internal/application/engine"
	"github.com/meshagent/meshagent/internal/domain/repository"
	"github.com/meshagent/meshagent/internal/infrastructure/logger"
	"github.com/meshagent/meshagent/pkg/models"
)

// InvocationHandlers provides HTTP handlers for the spec's Invoke and Read
// APIs (spec.md §6): running a WorkflowVersion through the WorkflowExecutor
// and reading back invocations and traces through the PersistencePort.
type InvocationHandlers struct {
	port     repository.PersistencePort
	executor *engine.WorkflowExecutor
	logger   *logger.Logger
}

// NewInvocationHandlers creates a new InvocationHandlers instance.
func NewInvocationHandlers(port repository.PersistencePort, executor *engine.WorkflowExecutor, log *logger.Logger) *InvocationHandlers {
	return &InvocationHandlers{
		port:     port,
		executor: executor,
		logger:   log,
	}
}

// HandleCreateVersion handles POST /api/v1/invocations/versions. It upserts
// the owning Workflow and inserts a WorkflowVersion so a caller has a
// version_id to pass to run_workflow. Not part of the read/invoke surface
// itself, but the minimal admin operation both depend on.
func (h *InvocationHandlers) HandleCreateVersion(c *gin.Context) {
	var req struct {
		VersionID     string     `json:"version_id" binding:"required"`
		WorkflowID    string     `json:"workflow_id" binding:"required"`
		DSL           models.DSL `json:"dsl" binding:"required"`
		CommitMessage string     `json:"commit_message"`
	}

	if err := bindJSON(c, &req); err != nil {
		return
	}

	ctx := c.Request.Context()
	if err := h.port.EnsureWorkflow(ctx, req.WorkflowID, ""); err != nil {
		h.logger.Error("Failed to ensure workflow", "error", err, "workflow_id", req.WorkflowID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	version := &models.WorkflowVersion{
		VersionID:     req.VersionID,
		WorkflowID:    req.WorkflowID,
		DSL:           req.DSL,
		Operation:     models.VersionOperationInit,
		CommitMessage: req.CommitMessage,
	}
	if err := h.port.CreateWorkflowVersion(ctx, version); err != nil {
		h.logger.Error("Failed to create workflow version", "error", err, "version_id", req.VersionID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	h.logger.Info("Workflow version created", "version_id", req.VersionID, "workflow_id", req.WorkflowID, "request_id", GetRequestID(c))
	respondJSON(c, http.StatusCreated, version)
}

// HandleRunWorkflow handles POST /api/v1/invocations: the spec's
// run_workflow(version_id, input, opts) -> invocation_id. Always runs
// asynchronously; callers poll HandleAwaitInvocation or HandleGetInvocation.
func (h *InvocationHandlers) HandleRunWorkflow(c *gin.Context) {
	var req struct {
		VersionID string         `json:"version_id" binding:"required"`
		Input     map[string]any `json:"input"`
		MainGoal  string         `json:"main_goal"`
	}

	if err := bindJSON(c, &req); err != nil {
		return
	}

	invocationID, err := h.executor.RunWorkflow(c.Request.Context(), req.VersionID, req.Input, req.MainGoal)
	if err != nil {
		h.logger.Error("Failed to start workflow invocation", "error", err, "version_id", req.VersionID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	h.logger.Info("Workflow invocation started", "invocation_id", invocationID, "version_id", req.VersionID, "request_id", GetRequestID(c))
	respondJSON(c, http.StatusAccepted, gin.H{"invocation_id": invocationID})
}

// HandleGetInvocation handles GET /api/v1/invocations/{id}.
func (h *InvocationHandlers) HandleGetInvocation(c *gin.Context) {
	invocationID, ok := getParam(c, "id")
	if !ok {
		return
	}

	inv, err := h.port.GetWorkflowInvocation(c.Request.Context(), invocationID)
	if err != nil {
		h.logger.Error("Failed to get invocation", "error", err, "invocation_id", invocationID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, inv)
}

// HandleAwaitInvocation handles GET /api/v1/invocations/{id}/await: the
// spec's await_invocation(invocation_id) -> result, blocking until the
// invocation reaches a terminal status or the request context is canceled.
func (h *InvocationHandlers) HandleAwaitInvocation(c *gin.Context) {
	invocationID, ok := getParam(c, "id")
	if !ok {
		return
	}

	inv, err := h.executor.AwaitInvocation(c.Request.Context(), invocationID)
	if err != nil {
		h.logger.Error("Failed to await invocation", "error", err, "invocation_id", invocationID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, inv)
}

// HandleGetTrace handles GET /api/v1/invocations/{id}/trace: the spec's
// get_trace(invocation_id) Read API.
func (h *InvocationHandlers) HandleGetTrace(c *gin.Context) {
	invocationID, ok := getParam(c, "id")
	if !ok {
		return
	}

	trace, err := h.port.GetTrace(c.Request.Context(), invocationID)
	if err != nil {
		h.logger.Error("Failed to get trace", "error", err, "invocation_id", invocationID, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondJSON(c, http.StatusOK, trace)
}

// HandleListInvocations handles GET /api/v1/invocations: the spec's
// list_invocations Read API with pagination, filtering, and sorting.
func (h *InvocationHandlers) HandleListInvocations(c *gin.Context) {
	page := getQueryInt(c, "page", 1)
	pageSize := getQueryInt(c, "page_size", 20)

	var filters repository.InvocationFilters
	if status := c.Query("status"); status != "" {
		s := models.InvocationStatus(status)
		filters.Status = &s
	}
	if runID := c.Query("run_id"); runID != "" {
		filters.RunID = &runID
	}
	if generationID := c.Query("generation_id"); generationID != "" {
		filters.GenerationID = &generationID
	}
	if versionID := c.Query("version_id"); versionID != "" {
		filters.VersionID = &versionID
	}
	if minCost := c.Query("min_cost"); minCost != "" {
		if v, err := strconv.ParseFloat(minCost, 64); err == nil {
			filters.MinCost = &v
		}
	}
	if maxCost := c.Query("max_cost"); maxCost != "" {
		if v, err := strconv.ParseFloat(maxCost, 64); err == nil {
			filters.MaxCost = &v
		}
	}
	if dateFrom := c.Query("date_from"); dateFrom != "" {
		if t, err := time.Parse(time.RFC3339, dateFrom); err == nil {
			filters.DateFrom = &t
		}
	}
	if dateTo := c.Query("date_to"); dateTo != "" {
		if t, err := time.Parse(time.RFC3339, dateTo); err == nil {
			filters.DateTo = &t
		}
	}

	sort := repository.Sort{
		Field: repository.SortField(getQuery(c, "sort_field", string(repository.SortByStartTime))),
		Order: repository.SortOrder(getQuery(c, "sort_order", string(repository.SortDescending))),
	}

	result, err := h.port.ListInvocations(c.Request.Context(), page, pageSize, filters, sort)
	if err != nil {
		h.logger.Error("Failed to list invocations", "error", err, "request_id", GetRequestID(c))
		respondAPIErrorWithRequestID(c, TranslateError(err))
		return
	}

	respondList(c, http.StatusOK, gin.H{"rows": result.Rows, "aggregates": result.Aggregates}, result.TotalCount, pageSize, (page-1)*pageSize)
}
