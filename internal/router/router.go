// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flash-sale-service/internal/handler"
	"github.com/iliyamo/flash-sale-service/internal/limiter"
	"github.com/iliyamo/flash-sale-service/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the register/login endpoints under /v1/auth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
}

// RegisterSeckill wires the flash-sale surface.
//
// Public:       stock probe.
// Authenticated (CUSTOMER or ADMIN): the seckill attempt and the
// participation probe; the attempt route additionally passes through the
// HTTP-level rate limiter before the engine's own per-activity limiter.
// Admin only:   activity management and stock initialization.
func RegisterSeckill(e *echo.Echo, s *handler.SeckillHandler, act *handler.ActivityHandler, jwtSecret string, httpLimiter limiter.Limiter) {
	// Public stock probe for product pages.
	e.GET("/v1/activities/:id/stock", s.RemainingStock)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ADMIN", "CUSTOMER"))
	auth.POST("/activities/:id/seckill", s.Attempt, middleware.RateLimit(httpLimiter))
	auth.GET("/activities/:id/participation", s.Participation)

	admin := e.Group("/v1")
	admin.Use(middleware.JWTAuth(jwtSecret))
	admin.Use(middleware.RequireRole("ADMIN"))
	admin.POST("/activities", act.Create)
	admin.GET("/activities", act.List)
	admin.PATCH("/activities/:id/status", act.UpdateStatus)
	admin.POST("/activities/:id/stock", act.InitStock)
}
