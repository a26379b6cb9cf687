// Package payment adapts external payment processors to the booking flow.
// The processor is the only source of truth for whether money moved; the
// service records what VerifyIntent reports and nothing else.
package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider names accepted by NewGateway.
const (
	ProviderStripe = "stripe"
	ProviderOmise  = "omise"
)

// ErrTokenRequired is returned by processors that charge a client supplied
// card or source token when none was given.
var ErrTokenRequired = errors.New("payment token required")

// ErrIntentSucceeded is returned by CancelIntent when the intent already
// collected the money.  The caller has to refund it instead.
var ErrIntentSucceeded = errors.New("payment intent already succeeded")

// IntentRequest asks the processor to start collecting Amount.
type IntentRequest struct {
	Amount   decimal.Decimal
	Currency string
	Metadata map[string]string
	// Token is a card or source token collected by the client.  Stripe
	// ignores it; Omise requires it.
	Token string
}

// Intent is the processor handle of an in-progress payment.
type Intent struct {
	ExternalID   string          `json:"payment_intent_id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// Verification is the processor's view of an intent.  Amount and Currency
// come from the processor, never from the client.
type Verification struct {
	ExternalID string
	Succeeded  bool
	Status     string
	Amount     decimal.Decimal
	Currency   string
	ReceiptURL string
	CustomerID string
	Method     string
	Metadata   map[string]string
}

// Gateway is implemented by every processor adapter.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	VerifyIntent(ctx context.Context, externalID string) (Verification, error)
	// Refund returns amount of a succeeded intent.  Calling it again for
	// the same intent after a success does not move money twice.
	Refund(ctx context.Context, externalID string, amount decimal.Decimal) error
	// CancelIntent stops an open intent from collecting money.  Intents
	// that are already cancelled return nil.
	CancelIntent(ctx context.Context, externalID string) error
}

// ToMinor converts an amount to the processor's smallest currency unit.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinor converts minor units back to a decimal amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func normalizeCurrency(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return "usd"
	}
	return c
}
