package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/middleware"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/response"
	"github.com/eventflow/eventflow-api/internal/service"
)

// EventHandler serves the event catalog and ticket type endpoints.
type EventHandler struct {
	catalog *service.CatalogService
}

func NewEventHandler(catalog *service.CatalogService) *EventHandler {
	if catalog == nil {
		panic("nil catalog service passed to NewEventHandler")
	}
	return &EventHandler{catalog: catalog}
}

type eventCreateReq struct {
	Title            string           `json:"title" validate:"required,notblank,max=255"`
	Description      *string          `json:"description"`
	ShortDescription *string          `json:"short_description" validate:"omitempty,max=500"`
	Category         *string          `json:"category" validate:"omitempty,max=100"`
	Venue            string           `json:"venue" validate:"required,notblank,max=255"`
	Address          *string          `json:"address"`
	City             *string          `json:"city" validate:"omitempty,max=100"`
	Country          *string          `json:"country" validate:"omitempty,max=100"`
	StartDate        time.Time        `json:"start_date" validate:"required"`
	EndDate          time.Time        `json:"end_date" validate:"required"`
	ImageURL         *string          `json:"image_url" validate:"omitempty,max=500"`
	ThumbnailURL     *string          `json:"thumbnail_url" validate:"omitempty,max=500"`
	MaxAttendees     *int             `json:"max_attendees" validate:"omitempty,gte=1"`
	Price            *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	IsFeatured       *bool            `json:"is_featured"`
	IsPublished      *bool            `json:"is_published"`
}

func (r eventCreateReq) input() service.EventInput {
	return service.EventInput{
		Title: &r.Title, Description: r.Description, ShortDescription: r.ShortDescription,
		Category: r.Category, Venue: &r.Venue, Address: r.Address, City: r.City, Country: r.Country,
		StartDate: &r.StartDate, EndDate: &r.EndDate, ImageURL: r.ImageURL, ThumbnailURL: r.ThumbnailURL,
		MaxAttendees: r.MaxAttendees, Price: r.Price, IsFeatured: r.IsFeatured, IsPublished: r.IsPublished,
	}
}

type eventUpdateReq struct {
	Title            *string          `json:"title" validate:"omitempty,notblank,max=255"`
	Description      *string          `json:"description"`
	ShortDescription *string          `json:"short_description" validate:"omitempty,max=500"`
	Category         *string          `json:"category" validate:"omitempty,notblank,max=100"`
	Venue            *string          `json:"venue" validate:"omitempty,notblank,max=255"`
	Address          *string          `json:"address"`
	City             *string          `json:"city" validate:"omitempty,max=100"`
	Country          *string          `json:"country" validate:"omitempty,max=100"`
	StartDate        *time.Time       `json:"start_date"`
	EndDate          *time.Time       `json:"end_date"`
	ImageURL         *string          `json:"image_url" validate:"omitempty,max=500"`
	ThumbnailURL     *string          `json:"thumbnail_url" validate:"omitempty,max=500"`
	MaxAttendees     *int             `json:"max_attendees" validate:"omitempty,gte=1"`
	Price            *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	IsFeatured       *bool            `json:"is_featured"`
	IsPublished      *bool            `json:"is_published"`
}

func (r eventUpdateReq) input() service.EventInput {
	return service.EventInput{
		Title: r.Title, Description: r.Description, ShortDescription: r.ShortDescription,
		Category: r.Category, Venue: r.Venue, Address: r.Address, City: r.City, Country: r.Country,
		StartDate: r.StartDate, EndDate: r.EndDate, ImageURL: r.ImageURL, ThumbnailURL: r.ThumbnailURL,
		MaxAttendees: r.MaxAttendees, Price: r.Price, IsFeatured: r.IsFeatured, IsPublished: r.IsPublished,
	}
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, domain.Validation("date", "Dates must be YYYY-MM-DD or RFC 3339")
}

func eventFilterFrom(c echo.Context) (repository.EventFilter, error) {
	f := repository.EventFilter{
		Category: strings.TrimSpace(c.QueryParam("category")),
		Search:   c.QueryParam("search"),
		Page:     pageFrom(c),
	}
	if v := c.QueryParam("is_featured"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, domain.Validation("is_featured", "is_featured must be true or false")
		}
		f.IsFeatured = &b
	}
	if v := c.QueryParam("organizer_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, domain.Validation("organizer_id", "Invalid organizer_id")
		}
		f.OrganizerID = &id
	}
	var err error
	if f.StartFrom, err = parseDate(c.QueryParam("start_date_from")); err != nil {
		return f, err
	}
	if f.StartTo, err = parseDate(c.QueryParam("start_date_to")); err != nil {
		return f, err
	}
	return f, nil
}

// List handles GET /api/events.
func (h *EventHandler) List(c echo.Context) error {
	f, err := eventFilterFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	events, total, err := h.catalog.ListEvents(ctx, middleware.IdentityFrom(c), f)
	if err != nil {
		return respondError(c, err)
	}
	return response.Page(c, http.StatusOK, events, response.NewPagination(f.Page.Page, f.Page.Limit, total))
}

func (h *EventHandler) Featured(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	events, err := h.catalog.Featured(ctx, queryInt(c, "limit"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", events)
}

func (h *EventHandler) Upcoming(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	events, err := h.catalog.Upcoming(ctx, queryInt(c, "limit"))
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", events)
}

func (h *EventHandler) Categories(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	cats, err := h.catalog.Categories(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", cats)
}

// ByOrganizer handles GET /api/events/organizer/:organizerId.
func (h *EventHandler) ByOrganizer(c echo.Context) error {
	organizerID, err := pathID(c, "organizerId")
	if err != nil {
		return respondError(c, err)
	}
	p := pageFrom(c)
	ctx, cancel := dbContext(c)
	defer cancel()

	events, total, err := h.catalog.ByOrganizer(ctx, middleware.IdentityFrom(c), organizerID, p)
	if err != nil {
		return respondError(c, err)
	}
	return response.Page(c, http.StatusOK, events, response.NewPagination(p.Page, p.Limit, total))
}

func (h *EventHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	detail, err := h.catalog.EventDetail(ctx, middleware.IdentityFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "", detail)
}

func (h *EventHandler) Create(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	var req eventCreateReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	ev, err := h.catalog.CreateEvent(ctx, caller, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusCreated, "Event created successfully", ev)
}

func (h *EventHandler) Update(c echo.Context) error {
	caller, err := identity(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req eventUpdateReq
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	ev, err := h.catalog.UpdateEvent(ctx, caller, id, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Event updated successfully", ev)
}

func (h *EventHandler) Delete(c echo.Context) error {
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

	if err := h.catalog.DeleteEvent(ctx, caller, id); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, http.StatusOK, "Event deleted successfully", nil)
}
