// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eventflow/eventflow-api/internal/config"
	"github.com/eventflow/eventflow-api/internal/handler"
	"github.com/eventflow/eventflow-api/internal/middleware"
)

// Deps holds everything the routes need.  RDB may be nil; rate limiting and
// caching then pass requests through.
type Deps struct {
	JWTSecret     string
	Auth          *handler.AuthHandler
	Events        *handler.EventHandler
	Bookings      *handler.BookingHandler
	Users         *handler.UserHandler
	Health        *handler.HealthHandler
	RDB           *redis.Client
	RateLimit     config.RateLimitConfig
	AuthRateLimit config.RateLimitConfig
	Cache         config.CacheConfig
}

// Register mounts the ops endpoints at the root and the API under /api.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d.Health)

	api := e.Group("/api",
		middleware.OptionalAuth(d.JWTSecret),
		middleware.NewTokenBucket("api", d.RateLimit, d.RDB),
	)
	RegisterAuth(api, d)
	RegisterEvents(api, d)
	RegisterBookings(api, d)
	RegisterUsers(api, d)
}

// RegisterRoutes registers the unauthenticated ops endpoints.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers /api/auth.  Credential endpoints get the stricter
// limiter.
func RegisterAuth(api *echo.Group, d Deps) {
	a := d.Auth
	strict := middleware.NewTokenBucket("auth", d.AuthRateLimit, d.RDB)
	auth := middleware.JWTAuth(d.JWTSecret)

	g := api.Group("/auth")
	g.POST("/register", a.Register, strict)
	g.POST("/login", a.Login, strict)
	g.POST("/refresh", a.Refresh, strict)
	g.POST("/forgot-password", a.ForgotPassword, strict)
	g.POST("/reset-password", a.ResetPassword, strict)
	g.POST("/logout", a.Logout)

	g.GET("/profile", a.Profile, auth)
	g.PUT("/profile", a.UpdateProfile, auth)
	g.PUT("/change-password", a.ChangePassword, auth)
}

// RegisterUsers registers the admin /api/users routes. The admin check
// happens in the service.
func RegisterUsers(api *echo.Group, d Deps) {
	g := api.Group("/users", middleware.JWTAuth(d.JWTSecret))
	g.GET("", d.Users.List)
	g.DELETE("/:id", d.Users.Deactivate)
}
