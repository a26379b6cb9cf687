// Package queue carries domain events over RabbitMQ: a topic exchange
// publisher used by the services and the notification consumer.
package queue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys on the topic exchange.
const (
	KeyBookingCreated       = "booking.created"
	KeyBookingConfirmed     = "booking.confirmed"
	KeyBookingCancelled     = "booking.cancelled"
	KeyPasswordResetRequest = "account.password_reset"
	KeyAccountRegistered    = "account.registered"
)

// BindingKeys are the patterns the notification queue is bound with.
var BindingKeys = []string{"booking.*", "account.*"}

// BookingEvent is published on every booking transition.  It carries enough
// context for the consumer to log and email without reading the database.
type BookingEvent struct {
	BookingID        uint64          `json:"booking_id"`
	BookingReference string          `json:"booking_reference"`
	Status           string          `json:"status"`
	UserID           uint64          `json:"user_id"`
	UserEmail        string          `json:"user_email,omitempty"`
	EventID          uint64          `json:"event_id"`
	EventTitle       string          `json:"event_title,omitempty"`
	TicketID         uint64          `json:"ticket_id"`
	Quantity         int             `json:"quantity"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Refunded         bool            `json:"refunded,omitempty"`
	ExternalID       string          `json:"payment_intent_id,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// PasswordResetRequested is published by forgot-password.  Token is the raw
// single-use token; only its hash is stored.
type PasswordResetRequested struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountRegistered is published after a successful registration.
type AccountRegistered struct {
	UserID uint64 `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}
