package payment

import (
	"fmt"
	"strings"

	"github.com/eventflow/eventflow-api/internal/config"
)

// NewGateway builds the processor adapter selected by cfg.Provider and wraps
// it in a circuit breaker.
func NewGateway(cfg config.PaymentConfig) (Gateway, error) {
	var (
		g   Gateway
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderStripe, "":
		g, err = NewStripeGateway(cfg.StripeSecretKey)
	case ProviderOmise:
		g, err = NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return WithBreaker(g, NewBreaker(g.Name(), cfg.BreakerThreshold, cfg.BreakerCooldown)), nil
}

// SupportedProviders lists the names NewGateway accepts.
func SupportedProviders() []string {
	return []string{ProviderStripe, ProviderOmise}
}
