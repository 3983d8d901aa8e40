package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// StartTestRun accepts a test-run.
// POST /v1/executions/test-runs
func (h *Handler) StartTestRun(c echo.Context) error {
	var req domain.TestRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.StartTestRun(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// StartGenerationRun accepts a generation-run.
// POST /v1/executions/generation-runs
func (h *Handler) StartGenerationRun(c echo.Context) error {
	var req domain.GenerationRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.StartGenerationRun(c.Request().Context(), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, resp)
}

// ListExecutions lists executions, newest first.
// GET /v1/executions?kind=&status=&project_id=&limit=
func (h *Handler) ListExecutions(c echo.Context) error {
	filter := domain.ExecutionFilter{
		Kind:      domain.ExecutionKind(c.QueryParam("kind")),
		Status:    domain.ExecutionStatus(c.QueryParam("status")),
		ProjectID: c.QueryParam("project_id"),
		Limit:     50,
	}
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			filter.Limit = val
		}
	}

	executions, err := h.service.ListExecutions(c.Request().Context(), filter)
	if err != nil {
		return errorResponse(c, err)
	}
	if executions == nil {
		executions = []domain.Execution{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"executions": executions,
	})
}

// GetExecution returns one execution.
// GET /v1/executions/:execution_id
func (h *Handler) GetExecution(c echo.Context) error {
	exec, err := h.service.GetExecution(c.Request().Context(), c.Param("execution_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// DeleteExecution removes a finished execution.
// DELETE /v1/executions/:execution_id
func (h *Handler) DeleteExecution(c echo.Context) error {
	if err := h.service.DeleteExecution(c.Request().Context(), c.Param("execution_id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CancelExecution stops a running execution.
// POST /v1/executions/:execution_id/cancel
func (h *Handler) CancelExecution(c echo.Context) error {
	resp, err := h.service.CancelExecution(c.Request().Context(), c.Param("execution_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetResults returns the result tree of a test-run.
// GET /v1/executions/:execution_id/results
func (h *Handler) GetResults(c echo.Context) error {
	tree, err := h.service.GetResultTree(c.Request().Context(), c.Param("execution_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, tree)
}

// GetGenerationResult returns the analysis of a generation-run.
// GET /v1/executions/:execution_id/generation
func (h *Handler) GetGenerationResult(c echo.Context) error {
	result, err := h.service.GetGenerationResult(c.Request().Context(), c.Param("execution_id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
