package payment

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/shopspring/decimal"
)

const (
	omiseSuccessful = "successful"
	omisePending    = "pending"
)

// OmiseGateway charges a card or source token directly; the charge id
// plays the role of the intent id.
type OmiseGateway struct {
	createCharge   func(*omise.Charge, *operations.CreateCharge) error
	retrieveCharge func(*omise.Charge, *operations.RetrieveCharge) error
	createRefund   func(*omise.Refund, *operations.CreateRefund) error
	reverseCharge  func(*omise.Charge, *operations.ReverseCharge) error
}

// NewOmiseGateway builds a gateway from an Omise key pair.
func NewOmiseGateway(publicKey, secretKey string) (*OmiseGateway, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &OmiseGateway{
		createCharge:   func(ch *omise.Charge, op *operations.CreateCharge) error { return c.Do(ch, op) },
		retrieveCharge: func(ch *omise.Charge, op *operations.RetrieveCharge) error { return c.Do(ch, op) },
		createRefund:   func(r *omise.Refund, op *operations.CreateRefund) error { return c.Do(r, op) },
		reverseCharge:  func(ch *omise.Charge, op *operations.ReverseCharge) error { return c.Do(ch, op) },
	}, nil
}

func (g *OmiseGateway) Name() string { return ProviderOmise }

func (g *OmiseGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Token == "" {
		return Intent{}, ErrTokenRequired
	}
	meta := make(map[string]interface{}, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	op := &operations.CreateCharge{
		Amount:   ToMinor(req.Amount),
		Currency: normalizeCurrency(req.Currency),
		Metadata: meta,
	}
	if isOmiseSource(req.Token) {
		op.Source = req.Token
	} else {
		op.Card = req.Token
	}
	ch := &omise.Charge{}
	if err := callWithContext(ctx, func() error { return g.createCharge(ch, op) }); err != nil {
		return Intent{}, fmt.Errorf("omise create charge: %w", err)
	}
	return Intent{
		ExternalID: ch.ID,
		Status:     string(ch.Status),
		Amount:     FromMinor(ch.Amount),
		Currency:   ch.Currency,
	}, nil
}

func (g *OmiseGateway) VerifyIntent(ctx context.Context, externalID string) (Verification, error) {
	ch, err := g.charge(ctx, externalID)
	if err != nil {
		return Verification{}, fmt.Errorf("omise retrieve charge: %w", err)
	}
	meta := make(map[string]string, len(ch.Metadata))
	for k, v := range ch.Metadata {
		meta[k] = fmt.Sprint(v)
	}
	return Verification{
		ExternalID: ch.ID,
		Succeeded:  string(ch.Status) == omiseSuccessful,
		Status:     string(ch.Status),
		Amount:     FromMinor(ch.Amount),
		Currency:   ch.Currency,
		Method:     "card",
		Metadata:   meta,
	}, nil
}

// Refund checks what the charge already returned first, so a retried
// refund is a no-op.
func (g *OmiseGateway) Refund(ctx context.Context, externalID string, amount decimal.Decimal) error {
	ch, err := g.charge(ctx, externalID)
	if err != nil {
		return fmt.Errorf("omise refund: %w", err)
	}
	minor := ToMinor(amount)
	if minor <= 0 {
		minor = ch.Amount
	}
	if ch.Refunded >= minor {
		return nil
	}
	op := &operations.CreateRefund{ChargeID: externalID, Amount: minor - ch.Refunded}
	r := &omise.Refund{}
	if err := callWithContext(ctx, func() error { return g.createRefund(r, op) }); err != nil {
		return fmt.Errorf("omise refund: %w", err)
	}
	return nil
}

// CancelIntent reverses a pending charge.  Charges that failed, expired or
// were reversed have nothing left to cancel.
func (g *OmiseGateway) CancelIntent(ctx context.Context, externalID string) error {
	ch, err := g.charge(ctx, externalID)
	if err != nil {
		return fmt.Errorf("omise cancel charge: %w", err)
	}
	switch {
	case string(ch.Status) == omiseSuccessful:
		return ErrIntentSucceeded
	case ch.Reversed || string(ch.Status) != omisePending:
		return nil
	}
	out := &omise.Charge{}
	err = callWithContext(ctx, func() error {
		return g.reverseCharge(out, &operations.ReverseCharge{ChargeID: externalID})
	})
	if err != nil {
		return fmt.Errorf("omise reverse charge: %w", err)
	}
	return nil
}

func (g *OmiseGateway) charge(ctx context.Context, externalID string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	err := callWithContext(ctx, func() error {
		return g.retrieveCharge(ch, &operations.RetrieveCharge{ChargeID: externalID})
	})
	return ch, err
}

// Source tokens start with "src_", card tokens with "tokn_".
func isOmiseSource(token string) bool {
	return len(token) > 4 && token[:4] == "src_"
}

// callWithContext runs fn and returns early when ctx ends first.  The Omise
// client has no per-call context; fn keeps running in the background.
func callWithContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
