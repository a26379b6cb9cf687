package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eventflow/eventflow-api/internal/response"
	"github.com/eventflow/eventflow-api/internal/service"
)

// BookingHandler serves the /api/bookings endpoints.
type BookingHandler struct {
	bookings *service.BookingService
}

func NewBookingHandler(bookings *service.BookingService) *BookingHandler {
	if bookings == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{bookings: bookings}
}

type createBookingReq struct {
	EventID  uint64  `json:"event_id" validate:"required"`
	TicketID uint64  `json:"ticket_id" validate:"required"`
	Quantity int     `json:"quantity" validate:"omitempty,gte=1,lte=100"`
	Notes    *string `json:"notes" validate:"omitempty,max=1000"`
}

type paymentIntentReq struct {
	// PaymentToken is the card or source token collected by the client.
	// Only processors that charge a token directly need it.
	PaymentToken string `json:"payment_token"`
}

type confirmPaymentReq struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

// Create handles POST /api/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req createBookingReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	b, err := h.bookings.Create(ctx, caller, service.CreateBookingInput{
		EventID: req.EventID, TicketID: req.TicketID, Quantity: req.Quantity, Notes: req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusCreated, "Booking created successfully", b)
}

func (h *BookingHandler) MyBookings(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	p := pageFrom(c)
	ctx, cancel := dbContext(c)
	defer cancel()

	list, total, err := h.bookings.ListMine(ctx, caller, p)
	if err != nil {
		return respondError(c, err)
	}
	return response.Page(c, http.StatusOK, list, response.NewPagination(p.Page, p.Limit, total))
}

func (h *BookingHandler) Stats(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	stats, err := h.bookings.Stats(ctx, caller)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", stats)
}

// EventBookings handles GET /api/bookings/event/:eventId.
func (h *BookingHandler) EventBookings(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	eventID, err := pathID(c, "eventId")
	if err != nil {
		return respondError(c, err)
	}
	p := pageFrom(c)
	ctx, cancel := dbContext(c)
	defer cancel()

	list, total, err := h.bookings.ListForEvent(ctx, caller, eventID, p)
	if err != nil {
		return respondError(c, err)
	}
	return response.Page(c, http.StatusOK, list, response.NewPagination(p.Page, p.Limit, total))
}

func (h *BookingHandler) Get(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	b, err := h.bookings.Get(ctx, caller, id)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", b)
}

// ByReference handles GET /api/bookings/reference/:reference.
func (h *BookingHandler) ByReference(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	b, err := h.bookings.GetByReference(ctx, caller, c.Param("reference"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", b)
}

// CheckIn handles POST /api/bookings/:id/check-in.
func (h *BookingHandler) CheckIn(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	b, err := h.bookings.CheckIn(ctx, caller, id)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Booking checked in", b)
}

// Cancel handles POST /api/bookings/:id/cancel.  Open intents are closed
// and a paid booking is refunded through the processor, so the deadline
// covers two gateway calls.
func (h *BookingHandler) Cancel(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*gatewayTimeout+dbTimeout)
	defer cancel()

	b, err := h.bookings.Cancel(ctx, caller, id)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Booking cancelled successfully", b)
}

// PaymentIntent handles POST /api/bookings/:id/payment-intent.
func (h *BookingHandler) PaymentIntent(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req paymentIntentReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), gatewayTimeout+dbTimeout)
	defer cancel()

	res, err := h.bookings.RequestPayment(ctx, caller, id, req.PaymentToken)
	if err != nil {
		return respondError(c, err)
	}
	if res.Free {
		return response.OK(c, http.StatusOK, "Free booking confirmed", res)
	}
	return response.OK(c, http.StatusOK, "Payment intent created", res)
}

// ConfirmPayment handles POST /api/bookings/:id/confirm-payment.
func (h *BookingHandler) ConfirmPayment(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req confirmPaymentReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), gatewayTimeout+dbTimeout)
	defer cancel()

	res, err := h.bookings.ConfirmPayment(ctx, caller, id, req.PaymentIntentID)
	if err != nil {
		return respondError(c, err)
	}
	if res.AlreadyConfirmed {
		return response.OK(c, http.StatusOK, "Booking already confirmed", res)
	}
	return response.OK(c, http.StatusOK, "Payment confirmed successfully", res)
}
