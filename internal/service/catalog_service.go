package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/model"
	"github.com/eventflow/eventflow-api/internal/policy"
	"github.com/eventflow/eventflow-api/internal/repository"
)

const (
	defaultCategory     = "General"
	defaultMaxAttendees = 100
	shortDescriptionLen = 200
)

// CatalogService manages events and their ticket types.  Every successful
// write calls purge so cached public listings are dropped.
type CatalogService struct {
	events  *repository.EventRepo
	tickets *repository.TicketRepo
	purge   func(context.Context) error
}

// NewCatalogService builds the service.  purge may be nil when no response
// cache is configured.
func NewCatalogService(events *repository.EventRepo, tickets *repository.TicketRepo, purge func(context.Context) error) *CatalogService {
	if events == nil || tickets == nil {
		panic("nil dependency passed to NewCatalogService")
	}
	if purge == nil {
		purge = func(context.Context) error { return nil }
	}
	return &CatalogService{events: events, tickets: tickets, purge: purge}
}

// EventInput carries event fields.  On update nil leaves a field unchanged.
type EventInput struct {
	Title            *string
	Description      *string
	ShortDescription *string
	Category         *string
	Venue            *string
	Address          *string
	City             *string
	Country          *string
	StartDate        *time.Time
	EndDate          *time.Time
	ImageURL         *string
	ThumbnailURL     *string
	MaxAttendees     *int
	Price            *decimal.Decimal
	IsFeatured       *bool
	IsPublished      *bool
}

func (in EventInput) apply(e *model.Event) {
	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = in.Description
	}
	if in.ShortDescription != nil {
		e.ShortDescription = in.ShortDescription
	}
	if in.Category != nil {
		e.Category = strings.TrimSpace(*in.Category)
	}
	if in.Venue != nil {
		e.Venue = strings.TrimSpace(*in.Venue)
	}
	if in.Address != nil {
		e.Address = in.Address
	}
	if in.City != nil {
		e.City = in.City
	}
	if in.Country != nil {
		e.Country = in.Country
	}
	if in.StartDate != nil {
		e.StartDate = in.StartDate.UTC()
	}
	if in.EndDate != nil {
		e.EndDate = in.EndDate.UTC()
	}
	if in.ImageURL != nil {
		e.ImageURL = in.ImageURL
	}
	if in.ThumbnailURL != nil {
		e.ThumbnailURL = in.ThumbnailURL
	}
	if in.MaxAttendees != nil {
		e.MaxAttendees = *in.MaxAttendees
	}
	if in.Price != nil {
		e.Price = *in.Price
	}
	if in.IsFeatured != nil {
		e.IsFeatured = *in.IsFeatured
	}
	if in.IsPublished != nil {
		e.IsPublished = *in.IsPublished
	}
	e.IsFree = e.Price.IsZero()
}

func validateEvent(e model.Event) error {
	switch {
	case e.Title == "":
		return domain.Validation("title", "Title is required")
	case e.Venue == "":
		return domain.Validation("venue", "Venue is required")
	case e.StartDate.IsZero() || e.EndDate.IsZero():
		return domain.Validation("start_date", "Start and end date are required")
	case e.EndDate.Before(e.StartDate):
		return domain.Validation("end_date", "End date must be after start date")
	case e.MaxAttendees < 1:
		return domain.Validation("max_attendees", "Max attendees must be at least 1")
	case e.Price.IsNegative():
		return domain.Validation("price", "Price cannot be negative")
	}
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ListEvents returns a page of events visible to viewer.
func (s *CatalogService) ListEvents(ctx context.Context, viewer *policy.Identity, f repository.EventFilter) ([]model.Event, int, error) {
	f.ViewerID, f.ViewerIsAdmin = 0, false
	if viewer != nil {
		f.ViewerID = viewer.UserID
		f.ViewerIsAdmin = viewer.IsAdmin()
	}
	return s.events.List(ctx, f)
}

// Featured lists upcoming featured events.
func (s *CatalogService) Featured(ctx context.Context, limit int) ([]model.Event, error) {
	return s.events.Featured(ctx, clampLimit(limit, 3))
}

// Upcoming lists published events that have not started.
func (s *CatalogService) Upcoming(ctx context.Context, limit int) ([]model.Event, error) {
	return s.events.Upcoming(ctx, clampLimit(limit, 6))
}

// Categories counts published events per category.
func (s *CatalogService) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	return s.events.Categories(ctx)
}

// ByOrganizer lists an organizer's events.  Unpublished ones are included
// only for the organizer and admins.
func (s *CatalogService) ByOrganizer(ctx context.Context, viewer *policy.Identity, organizerID uint64, p repository.Page) ([]model.Event, int, error) {
	f := repository.EventFilter{OrganizerID: &organizerID, Page: p}
	if policy.Can(viewer, policy.ViewUnpublishedEvent, policy.Resource{OwnerID: organizerID}) {
		f.ViewerIsAdmin = true
	}
	return s.events.List(ctx, f)
}

// EventDetail returns an event with its active ticket types.
func (s *CatalogService) EventDetail(ctx context.Context, viewer *policy.Identity, id uint64) (model.EventDetail, error) {
	e, err := s.visibleEvent(ctx, viewer, id)
	if err != nil {
		return model.EventDetail{}, err
	}
	tickets, err := s.tickets.ListByEvent(ctx, id, false)
	if err != nil {
		return model.EventDetail{}, err
	}
	return model.EventDetail{Event: e, AvailableSpots: e.AvailableSpots(), Tickets: tickets}, nil
}

// CreateEvent publishes a new event organized by the caller.
func (s *CatalogService) CreateEvent(ctx context.Context, id policy.Identity, in EventInput) (model.Event, error) {
	if !policy.Can(&id, policy.CreateEvent, policy.Resource{}) {
		return model.Event{}, domain.Forbidden("Only admins can create events")
	}
	organizer := id.UserID
	e := model.Event{
		Category:     defaultCategory,
		MaxAttendees: defaultMaxAttendees,
		Price:        decimal.Zero,
		IsPublished:  true,
		OrganizerID:  &organizer,
	}
	in.apply(&e)
	if e.Category == "" {
		e.Category = defaultCategory
	}
	if e.ShortDescription == nil && e.Description != nil {
		short := truncateRunes(*e.Description, shortDescriptionLen)
		e.ShortDescription = &short
	}
	if err := validateEvent(e); err != nil {
		return model.Event{}, err
	}
	if err := s.events.Create(ctx, &e); err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	s.invalidate(ctx)
	return s.reload(ctx, e)
}

// UpdateEvent changes an event.  Capacity cannot drop below the attendees
// already booked.
func (s *CatalogService) UpdateEvent(ctx context.Context, id policy.Identity, eventID uint64, in EventInput) (model.Event, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return model.Event{}, notFoundEvent(err)
	}
	if !policy.Can(&id, policy.UpdateEvent, policy.EventResource(e)) {
		return model.Event{}, domain.Forbidden("You do not have permission to update this event")
	}
	in.apply(&e)
	if err := validateEvent(e); err != nil {
		return model.Event{}, err
	}
	if e.MaxAttendees < e.CurrentAttendees {
		return model.Event{}, domain.Validation("max_attendees", "Max attendees cannot be lower than current attendees")
	}
	if err := s.events.Update(ctx, &e); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotApplied):
			return model.Event{}, domain.Validation("max_attendees", "Max attendees cannot be lower than current attendees")
		case repository.IsNotFound(err):
			return model.Event{}, notFoundEvent(err)
		}
		return model.Event{}, fmt.Errorf("update event: %w", err)
	}
	s.invalidate(ctx)
	return s.reload(ctx, e)
}

// DeleteEvent removes an event without active bookings.
func (s *CatalogService) DeleteEvent(ctx context.Context, id policy.Identity, eventID uint64) error {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return notFoundEvent(err)
	}
	if !policy.Can(&id, policy.DeleteEvent, policy.EventResource(e)) {
		return domain.Forbidden("You do not have permission to delete this event")
	}
	if err := s.events.Delete(ctx, eventID); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return domain.Conflict("event", "Cannot delete an event with active bookings")
		case repository.IsNotFound(err):
			return notFoundEvent(err)
		}
		return fmt.Errorf("delete event: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// TicketInput carries ticket type fields.  On update nil leaves a field
// unchanged.
type TicketInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	SaleStart   *time.Time
	SaleEnd     *time.Time
	IsActive    *bool
}

func (in TicketInput) apply(t *model.Ticket) {
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		t.Description = in.Description
	}
	if in.Price != nil {
		t.Price = *in.Price
	}
	if in.Quantity != nil {
		t.Quantity = *in.Quantity
	}
	if in.SaleStart != nil {
		st := in.SaleStart.UTC()
		t.SaleStart = &st
	}
	if in.SaleEnd != nil {
		en := in.SaleEnd.UTC()
		t.SaleEnd = &en
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
}

func validateTicket(t model.Ticket) error {
	switch {
	case t.Name == "":
		return domain.Validation("name", "Ticket name is required")
	case t.Price.IsNegative():
		return domain.Validation("price", "Price cannot be negative")
	case t.Quantity < 1:
		return domain.Validation("quantity", "Quantity must be at least 1")
	case t.SaleStart != nil && t.SaleEnd != nil && t.SaleEnd.Before(*t.SaleStart):
		return domain.Validation("sale_end", "Sale end must be after sale start")
	}
	return nil
}

// ListTickets returns the ticket types of a visible event.  Managers also
// see inactive ones.
func (s *CatalogService) ListTickets(ctx context.Context, viewer *policy.Identity, eventID uint64) ([]model.Ticket, error) {
	e, err := s.visibleEvent(ctx, viewer, eventID)
	if err != nil {
		return nil, err
	}
	manager := policy.Can(viewer, policy.ManageTickets, policy.EventResource(e))
	return s.tickets.ListByEvent(ctx, eventID, manager)
}

// CreateTicket adds a ticket type to an event.
func (s *CatalogService) CreateTicket(ctx context.Context, id policy.Identity, eventID uint64, in TicketInput) (model.Ticket, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return model.Ticket{}, notFoundEvent(err)
	}
	if !policy.Can(&id, policy.ManageTickets, policy.EventResource(e)) {
		return model.Ticket{}, domain.Forbidden("You do not have permission to manage tickets for this event")
	}
	t := model.Ticket{EventID: eventID, Price: decimal.Zero, IsActive: true}
	in.apply(&t)
	if err := validateTicket(t); err != nil {
		return model.Ticket{}, err
	}
	if err := s.tickets.Create(ctx, &t); err != nil {
		return model.Ticket{}, fmt.Errorf("create ticket: %w", err)
	}
	s.invalidate(ctx)
	return t, nil
}

// UpdateTicket edits a ticket type.  Changing the quantity moves the
// available quantity by the same amount and cannot go below units sold.
func (s *CatalogService) UpdateTicket(ctx context.Context, id policy.Identity, ticketID uint64, in TicketInput) (model.Ticket, error) {
	t, e, err := s.ticketWithEvent(ctx, ticketID)
	if err != nil {
		return model.Ticket{}, err
	}
	if !policy.Can(&id, policy.ManageTickets, policy.EventResource(e)) {
		return model.Ticket{}, domain.Forbidden("You do not have permission to manage tickets for this event")
	}
	in.apply(&t)
	if err := validateTicket(t); err != nil {
		return model.Ticket{}, err
	}
	if err := s.tickets.Update(ctx, &t); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotApplied):
			return model.Ticket{}, domain.Validation("quantity", "Quantity cannot be lower than tickets already sold")
		case repository.IsNotFound(err):
			return model.Ticket{}, domain.NotFound("ticket", "Ticket not found")
		}
		return model.Ticket{}, fmt.Errorf("update ticket: %w", err)
	}
	s.invalidate(ctx)
	return t, nil
}

// DeleteTicket removes a ticket type that has never been booked.
func (s *CatalogService) DeleteTicket(ctx context.Context, id policy.Identity, ticketID uint64) error {
	_, e, err := s.ticketWithEvent(ctx, ticketID)
	if err != nil {
		return err
	}
	if !policy.Can(&id, policy.ManageTickets, policy.EventResource(e)) {
		return domain.Forbidden("You do not have permission to manage tickets for this event")
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return domain.Conflict("ticket", "Cannot delete a ticket type with bookings, deactivate it instead")
		case repository.IsNotFound(err):
			return domain.NotFound("ticket", "Ticket not found")
		}
		return fmt.Errorf("delete ticket: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) visibleEvent(ctx context.Context, viewer *policy.Identity, id uint64) (model.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return model.Event{}, notFoundEvent(err)
	}
	if !e.IsPublished && !policy.Can(viewer, policy.ViewUnpublishedEvent, policy.EventResource(e)) {
		return model.Event{}, domain.NotFound("event", "Event not found")
	}
	return e, nil
}

func (s *CatalogService) ticketWithEvent(ctx context.Context, ticketID uint64) (model.Ticket, model.Event, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.Ticket{}, model.Event{}, domain.NotFound("ticket", "Ticket not found")
		}
		return model.Ticket{}, model.Event{}, err
	}
	e, err := s.events.GetByID(ctx, t.EventID)
	if err != nil {
		return model.Ticket{}, model.Event{}, notFoundEvent(err)
	}
	return t, e, nil
}

// reload re-reads e so the response carries the organizer name and
// database timestamps.  A failed read falls back to e.
func (s *CatalogService) reload(ctx context.Context, e model.Event) (model.Event, error) {
	fresh, err := s.events.GetByID(ctx, e.ID)
	if err != nil {
		log.Warn().Err(err).Uint64("event_id", e.ID).Msg("reload event")
		return e, nil
	}
	return fresh, nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if err := s.purge(ctx); err != nil {
		log.Warn().Err(err).Msg("purge response cache")
	}
}

func notFoundEvent(err error) error {
	if repository.IsNotFound(err) {
		return domain.NotFound("event", "Event not found")
	}
	return err
}

func clampLimit(n, def int) int {
	if n < 1 {
		return def
	}
	if n > 50 {
		return 50
	}
	return n
}
