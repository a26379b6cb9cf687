package router

import (
	"github.com/labstack/echo/v4"

	"github.com/eventflow/eventflow-api/internal/middleware"
	"github.com/eventflow/eventflow-api/internal/model"
)

// RegisterEvents registers the catalog.  Anonymous reads go through the
// response cache; writes need a token and ownership is checked by the
// service.
func RegisterEvents(api *echo.Group, d Deps) {
	h := d.Events
	cache := middleware.NewRedisCache(d.Cache, d.RDB)
	auth := middleware.JWTAuth(d.JWTSecret)

	g := api.Group("/events")
	g.GET("", h.List, cache)
	g.GET("/featured", h.Featured, cache)
	g.GET("/upcoming", h.Upcoming, cache)
	g.GET("/categories", h.Categories, cache)
	g.GET("/organizer/:organizerId", h.ByOrganizer, cache)
	g.GET("/:id", h.Get, cache)
	g.GET("/:id/tickets", h.ListTickets, cache)

	g.POST("", h.Create, auth, middleware.RequireRole(model.RoleAdmin))
	g.PUT("/:id", h.Update, auth)
	g.DELETE("/:id", h.Delete, auth)
	g.POST("/:id/tickets", h.CreateTicket, auth)

	t := api.Group("/tickets", auth)
	t.PUT("/:id", h.UpdateTicket)
	t.DELETE("/:id", h.DeleteTicket)
}
