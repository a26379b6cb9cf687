package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a row of the `events` table.  CurrentAttendees is a counter
// maintained by the booking transaction and never exceeds MaxAttendees.
type Event struct {
	ID               uint64          `json:"id"`
	Title            string          `json:"title"`
	Description      *string         `json:"description,omitempty"`
	ShortDescription *string         `json:"short_description,omitempty"`
	Category         string          `json:"category"`
	Venue            string          `json:"venue"`
	Address          *string         `json:"address,omitempty"`
	City             *string         `json:"city,omitempty"`
	Country          *string         `json:"country,omitempty"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	ImageURL         *string         `json:"image_url,omitempty"`
	ThumbnailURL     *string         `json:"thumbnail_url,omitempty"`
	MaxAttendees     int             `json:"max_attendees"`
	CurrentAttendees int             `json:"current_attendees"`
	Price            decimal.Decimal `json:"price"`
	IsFree           bool            `json:"is_free"`
	IsFeatured       bool            `json:"is_featured"`
	IsPublished      bool            `json:"is_published"`
	OrganizerID      *uint64         `json:"organizer_id,omitempty"`
	OrganizerName    *string         `json:"organizer_name,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AvailableSpots is the remaining event capacity.
func (e Event) AvailableSpots() int {
	if n := e.MaxAttendees - e.CurrentAttendees; n > 0 {
		return n
	}
	return 0
}

// OrganizedBy reports whether userID organizes the event.
func (e Event) OrganizedBy(userID uint64) bool {
	return e.OrganizerID != nil && *e.OrganizerID == userID
}

// EventDetail is an event together with its ticket types.
type EventDetail struct {
	Event
	AvailableSpots int      `json:"available_spots"`
	Tickets        []Ticket `json:"tickets"`
}

// CategoryCount is one row of the categories listing.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}
