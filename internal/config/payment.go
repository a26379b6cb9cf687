package config

import "time"

// PaymentConfig selects and configures the payment processor.
type PaymentConfig struct {
	Provider         string // stripe | omise
	Currency         string // ISO currency code, lower case
	StripeSecretKey  string
	OmisePublicKey   string
	OmiseSecretKey   string
	BreakerThreshold int           // consecutive failures before the breaker opens
	BreakerCooldown  time.Duration // how long the breaker stays open
	Timeout          time.Duration // per call timeout towards the processor
}

// LoadPaymentConfig reads PAYMENT_*, STRIPE_* and OMISE_* variables.
func LoadPaymentConfig() PaymentConfig {
	return PaymentConfig{
		Provider:         envStr("PAYMENT_PROVIDER", "stripe"),
		Currency:         envStr("PAYMENT_CURRENCY", "usd"),
		StripeSecretKey:  envStr("STRIPE_SECRET_KEY", ""),
		OmisePublicKey:   envStr("OMISE_PUBLIC_KEY", ""),
		OmiseSecretKey:   envStr("OMISE_SECRET_KEY", ""),
		BreakerThreshold: envInt("PAYMENT_BREAKER_THRESHOLD", 5),
		BreakerCooldown:  envDur("PAYMENT_BREAKER_COOLDOWN", 30*time.Second),
		Timeout:          envDur("PAYMENT_TIMEOUT", 15*time.Second),
	}
}
