package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flash-sale-service/internal/limiter"
)

// RateLimit returns an Echo middleware that gates requests through the
// given limiter, keyed by client IP plus route so one hot client cannot
// starve the rest.  A nil limiter disables the middleware.  The limiter
// itself fails open on store outages, so this layer only ever rejects on a
// genuine over-limit decision.
func RateLimit(lim limiter.Limiter) echo.MiddlewareFunc {
	if lim == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := ip + ":" + c.Request().Method + ":" + c.Path()
			if !lim.Admit(c.Request().Context(), key) {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":   "too_many_requests",
					"message": "rate limit exceeded",
				})
			}
			return next(c)
		}
	}
}
