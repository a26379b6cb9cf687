package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

type stripeIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type stripeRefunds interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway uses PaymentIntents with automatic payment methods.
type StripeGateway struct {
	intents stripeIntents
	refunds stripeRefunds
}

// NewStripeGateway builds a gateway from a secret key.
func NewStripeGateway(secretKey string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe: secret key is empty")
	}
	sc := client.New(secretKey, nil)
	return &StripeGateway{intents: sc.PaymentIntents, refunds: sc.Refunds}, nil
}

func (g *StripeGateway) Name() string { return ProviderStripe }

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	currency := normalizeCurrency(req.Currency)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinor(req.Amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := g.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe create intent: %w", err)
	}
	return Intent{
		ExternalID:   pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       FromMinor(pi.Amount),
		Currency:     string(pi.Currency),
	}, nil
}

func (g *StripeGateway) VerifyIntent(ctx context.Context, externalID string) (Verification, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	pi, err := g.intents.Get(externalID, params)
	if err != nil {
		return Verification{}, fmt.Errorf("stripe retrieve intent: %w", err)
	}
	v := Verification{
		ExternalID: pi.ID,
		Succeeded:  pi.Status == stripe.PaymentIntentStatusSucceeded,
		Status:     string(pi.Status),
		Amount:     FromMinor(pi.Amount),
		Currency:   string(pi.Currency),
		Metadata:   pi.Metadata,
		Method:     "card",
	}
	if pi.LatestCharge != nil {
		v.ReceiptURL = pi.LatestCharge.ReceiptURL
	}
	if pi.Customer != nil {
		v.CustomerID = pi.Customer.ID
	}
	if len(pi.PaymentMethodTypes) > 0 {
		v.Method = pi.PaymentMethodTypes[0]
	}
	return v, nil
}

func (g *StripeGateway) Refund(ctx context.Context, externalID string, amount decimal.Decimal) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(externalID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + externalID)
	if amount.IsPositive() {
		params.Amount = stripe.Int64(ToMinor(amount))
	}
	if _, err := g.refunds.New(params); err != nil {
		return fmt.Errorf("stripe refund: %w", err)
	}
	return nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, externalID string) error {
	get := &stripe.PaymentIntentParams{}
	get.Context = ctx
	pi, err := g.intents.Get(externalID, get)
	if err != nil {
		return fmt.Errorf("stripe retrieve intent: %w", err)
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusCanceled:
		return nil
	case stripe.PaymentIntentStatusSucceeded:
		return ErrIntentSucceeded
	}
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := g.intents.Cancel(externalID, params); err != nil {
		return fmt.Errorf("stripe cancel intent: %w", err)
	}
	return nil
}
