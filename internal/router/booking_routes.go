package router

import (
	"github.com/labstack/echo/v4"

	"github.com/eventflow/eventflow-api/internal/middleware"
)

// RegisterBookings registers /api/bookings.  Every route needs a token;
// ownership and organizer checks happen in the service.
func RegisterBookings(api *echo.Group, d Deps) {
	h := d.Bookings
	g := api.Group("/bookings", middleware.JWTAuth(d.JWTSecret))

	g.POST("", h.Create)
	g.GET("/my-bookings", h.MyBookings)
	g.GET("/stats", h.Stats)
	g.GET("/event/:eventId", h.EventBookings)
	g.GET("/reference/:reference", h.ByReference)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/payment-intent", h.PaymentIntent)
	g.POST("/:id/confirm-payment", h.ConfirmPayment)
	g.POST("/:id/check-in", h.CheckIn)
}
