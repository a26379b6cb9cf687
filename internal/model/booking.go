package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking statuses.  cancelled and refunded are terminal.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingRefunded  = "refunded"
)

// Booking is a row of the `bookings` table.  TotalAmount is the ticket price
// times the quantity at creation time and is never recomputed.
type Booking struct {
	ID               uint64          `json:"id"`
	UserID           uint64          `json:"user_id"`
	EventID          uint64          `json:"event_id"`
	TicketID         uint64          `json:"ticket_id"`
	Quantity         int             `json:"quantity"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	BookingReference string          `json:"booking_reference"`
	Status           string          `json:"status"`
	Notes            *string         `json:"notes,omitempty"`
	Attended         bool            `json:"attended"`
	CheckinTime      *time.Time      `json:"checkin_time,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsTerminal reports whether no further transition is allowed.
func (b Booking) IsTerminal() bool {
	return b.Status == BookingCancelled || b.Status == BookingRefunded
}

// BookingView is a booking joined with the event, ticket and user columns
// shown in listings.
type BookingView struct {
	Booking
	EventTitle     string    `json:"event_title"`
	EventStartDate time.Time `json:"event_start_date"`
	EventVenue     string    `json:"event_venue"`
	TicketName     string    `json:"ticket_name"`
	UserName       string    `json:"user_name,omitempty"`
	UserEmail      string    `json:"user_email,omitempty"`
}

// BookingStats aggregates a user's bookings.
type BookingStats struct {
	Total     int `json:"total"`
	Confirmed int `json:"confirmed"`
	Pending   int `json:"pending"`
	Cancelled int `json:"cancelled"`
	Attended  int `json:"attended"`
}
