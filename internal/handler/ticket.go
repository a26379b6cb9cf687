package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/eventflow/eventflow-api/internal/middleware"
	"github.com/eventflow/eventflow-api/internal/response"
	"github.com/eventflow/eventflow-api/internal/service"
)

type ticketReq struct {
	Name        *string          `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	Quantity    *int             `json:"quantity" validate:"omitempty,gte=1"`
	SaleStart   *time.Time       `json:"sale_start"`
	SaleEnd     *time.Time       `json:"sale_end"`
	IsActive    *bool            `json:"is_active"`
}

func (r ticketReq) input() service.TicketInput {
	return service.TicketInput{
		Name: r.Name, Description: r.Description, Price: r.Price, Quantity: r.Quantity,
		SaleStart: r.SaleStart, SaleEnd: r.SaleEnd, IsActive: r.IsActive,
	}
}

// ListTickets handles GET /api/events/:id/tickets.
func (h *EventHandler) ListTickets(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	tickets, err := h.catalog.ListTickets(ctx, middleware.IdentityFrom(c), eventID)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", tickets)
}

// CreateTicket handles POST /api/events/:id/tickets.  name and quantity are
// required here and optional on update.
func (h *EventHandler) CreateTicket(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	eventID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ticketReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	t, err := h.catalog.CreateTicket(ctx, caller, eventID, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusCreated, "Ticket created successfully", t)
}

func (h *EventHandler) UpdateTicket(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req ticketReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	t, err := h.catalog.UpdateTicket(ctx, caller, id, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Ticket updated successfully", t)
}

func (h *EventHandler) DeleteTicket(c echo.Context) error {
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

	if err := h.catalog.DeleteTicket(ctx, caller, id); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Ticket deleted successfully", nil)
}
