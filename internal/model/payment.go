package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// Payment is a row of the `payments` table.  ExternalID is the processor's
// intent or charge id and is unique, so a confirmed intent can only ever be
// recorded once.
type Payment struct {
	ID            uint64          `json:"id"`
	BookingID     uint64          `json:"booking_id"`
	UserID        uint64          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Provider      string          `json:"provider"`
	ExternalID    string          `json:"external_id"`
	CustomerID    *string         `json:"customer_id,omitempty"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	Status        string          `json:"status"`
	ReceiptURL    *string         `json:"receipt_url,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	RefundedAt    *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
