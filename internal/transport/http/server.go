// Package http provides the HTTP server implementation for the orchestrator.
package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/config"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/service"
	v1 "github.com/satori-chatbots/chatbot-dojo-sub000/internal/transport/http/v1"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/transport/ws"
)

// NewServer creates and configures the public HTTP server: the v1 API, the
// websocket progress feed and, when metricsHandler is set, /metrics.
func NewServer(cfg *config.Config, svc *service.Service, wsServer *ws.Server, metricsHandler http.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1Handler := v1.NewHandler(svc, cfg.PollInterval, v1.StartRateLimit(cfg.StartRateLimit, cfg.StartRateBurst))
	v1Handler.RegisterRoutes(e)

	if wsServer != nil {
		e.GET("/ws", wsServer.HandleWebSocket)
	}
	if metricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}

	return e
}
