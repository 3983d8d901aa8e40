package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// StartRateLimit limits how often executions may be started. A limit of 0
// means unlimited and yields a nil middleware.
func StartRateLimit(limit float64, burst int) echo.MiddlewareFunc {
	if limit <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow() {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many start requests"})
			}
			return next(c)
		}
	}
}
