// Package v1 provides the public HTTP API of the orchestrator.
package v1

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	// streamInterval is how often the SSE stream polls for new events.
	streamInterval time.Duration
	// finishGrace bounds how long a stream of a terminal execution waits for
	// its execution_finished event.
	finishGrace time.Duration
	startLimit  echo.MiddlewareFunc
}

// NewHandler creates a new handler. A nil startLimit leaves start requests unlimited.
func NewHandler(service *service.Service, streamInterval time.Duration, startLimit echo.MiddlewareFunc) *Handler {
	if streamInterval <= 0 {
		streamInterval = time.Second
	}
	return &Handler{
		service:        service,
		streamInterval: streamInterval,
		finishGrace:    5 * time.Second,
		startLimit:     startLimit,
	}
}

// RegisterRoutes registers the v1 routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	var startMW []echo.MiddlewareFunc
	if h.startLimit != nil {
		startMW = append(startMW, h.startLimit)
	}

	g := e.Group("/v1/executions")
	g.POST("/test-runs", h.StartTestRun, startMW...)
	g.POST("/generation-runs", h.StartGenerationRun, startMW...)
	g.GET("", h.ListExecutions)
	g.GET("/:execution_id", h.GetExecution)
	g.DELETE("/:execution_id", h.DeleteExecution)
	g.POST("/:execution_id/cancel", h.CancelExecution)
	g.GET("/:execution_id/results", h.GetResults)
	g.GET("/:execution_id/generation", h.GetGenerationResult)
	g.GET("/:execution_id/events", h.GetEvents)
	g.GET("/:execution_id/events/stream", h.StreamEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"version":           "0.1.0",
		"active_executions": h.service.Coordinator().ActiveCount(),
	})
}

// errorResponse maps service errors to HTTP status codes.
func errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrExecutionActive):
		status = http.StatusConflict
	default:
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
