package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is a ticket type of an event (`tickets` table).
// 0 <= AvailableQuantity <= Quantity holds for every committed row.
type Ticket struct {
	ID                uint64          `json:"id"`
	EventID           uint64          `json:"event_id"`
	Name              string          `json:"name"`
	Description       *string         `json:"description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Quantity          int             `json:"quantity"`
	AvailableQuantity int             `json:"available_quantity"`
	SaleStart         *time.Time      `json:"sale_start,omitempty"`
	SaleEnd           *time.Time      `json:"sale_end,omitempty"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Sold is the number of units currently held by bookings.
func (t Ticket) Sold() int { return t.Quantity - t.AvailableQuantity }

// OnSale reports whether now falls inside the optional sale window.
func (t Ticket) OnSale(now time.Time) bool {
	if t.SaleStart != nil && now.Before(*t.SaleStart) {
		return false
	}
	if t.SaleEnd != nil && now.After(*t.SaleEnd) {
		return false
	}
	return true
}
