package v1

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// GetEvents retrieves recorded events for an execution.
// GET /v1/executions/:execution_id/events?after_ts=&types=&limit=
func (h *Handler) GetEvents(c echo.Context) error {
	executionID := c.Param("execution_id")
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil {
			limit = val
		}
	}
	afterTs := int64(0)
	if t := c.QueryParam("after_ts"); t != "" {
		if val, err := strconv.ParseInt(t, 10, 64); err == nil {
			afterTs = val
		}
	}
	var types []string
	if t := c.QueryParam("types"); t != "" {
		for _, part := range strings.Split(t, ",") {
			if p := strings.TrimSpace(part); p != "" {
				types = append(types, p)
			}
		}
	}

	events, err := h.service.GetExecutionEvents(c.Request().Context(), executionID, afterTs, types, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events":   events,
		"has_more": limit > 0 && len(events) == limit,
	})
}

// StreamEvents streams an execution's events as server-sent events until the
// execution_finished event has been delivered. A terminal execution that never
// records one ends the stream after finishGrace.
// GET /v1/executions/:execution_id/events/stream
func (h *Handler) StreamEvents(c echo.Context) error {
	ctx := c.Request().Context()
	executionID := c.Param("execution_id")

	if _, err := h.service.GetExecution(ctx, executionID); err != nil {
		return errorResponse(c, err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	// Timestamps have millisecond resolution, so the last timestamp is
	// re-read and already delivered ids at it are skipped.
	var lastTs int64
	seen := make(map[string]bool)
	finished := false
	var terminalSince time.Time

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		exec, err := h.service.GetExecution(ctx, executionID)
		if err != nil {
			log.Printf("WARN: event stream for %s ended: %v", executionID, err)
			return nil
		}
		if exec.Status.IsTerminal() && terminalSince.IsZero() {
			terminalSince = time.Now()
		}

		after := lastTs
		if after > 0 {
			after--
		}
		events, err := h.service.GetExecutionEvents(ctx, executionID, after, nil, 0)
		if err != nil {
			log.Printf("WARN: event stream for %s ended: %v", executionID, err)
			return nil
		}

		for _, event := range events {
			if seen[event.EventID] {
				continue
			}
			if event.Ts > lastTs {
				lastTs = event.Ts
				seen = make(map[string]bool)
			}
			seen[event.EventID] = true
			if event.Type == domain.EventTypeExecutionFinished {
				finished = true
			}

			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(c.Response().Writer, "id: %s\nevent: %s\ndata: %s\n\n", event.EventID, event.Type, data); err != nil {
				return nil
			}
		}
		flusher.Flush()

		// The status is written before execution_finished is recorded.
		if finished || (!terminalSince.IsZero() && time.Since(terminalSince) >= h.finishGrace) {
			fmt.Fprintf(c.Response().Writer, "data: [DONE]\n\n")
			flusher.Flush()
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
