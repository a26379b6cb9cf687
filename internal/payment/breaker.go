package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/omise/omise-go"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"

	"github.com/eventflow/eventflow-api/internal/metrics"
)

// ErrBreakerOpen is returned without calling the processor while the
// breaker is open.
var ErrBreakerOpen = errors.New("payment processor unavailable: circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// Breaker opens after threshold consecutive failures and lets a single
// trial call through once cooldown has passed.  A successful trial closes it,
// a failed one re-opens it for another cooldown.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	expiry     time.Time
	generation uint64
	probing    bool
}

func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

// State reports the current state, moving open to half-open when the
// cooldown has expired.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(b.now())
}

// Execute runs req unless the breaker is open.  Context cancellation by the
// caller is not counted as a processor failure.
func (b *Breaker) Execute(ctx context.Context, req func() error) error {
	gen, err := b.beforeRequest()
	if err != nil {
		return err
	}
	defer func() {
		if e := recover(); e != nil {
			b.afterRequest(gen, false)
			panic(e)
		}
	}()
	err = req()
	b.afterRequest(gen, err == nil || (ctx.Err() != nil && errors.Is(err, ctx.Err())))
	return err
}

func (b *Breaker) beforeRequest() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState(b.now()) {
	case StateOpen:
		return b.generation, ErrBreakerOpen
	case StateHalfOpen:
		if b.probing {
			return b.generation, ErrBreakerOpen
		}
		b.probing = true
	}
	return b.generation, nil
}

func (b *Breaker) afterRequest(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentState(b.now())
	if gen != b.generation {
		return
	}
	if success {
		b.failures = 0
		if state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}
	b.failures++
	if state == StateHalfOpen || b.failures >= b.threshold {
		b.setState(StateOpen)
	}
}

func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && !b.expiry.After(now) {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(s State) {
	b.state = s
	b.generation++
	b.failures = 0
	b.probing = false
	b.expiry = time.Time{}
	if s == StateOpen {
		b.expiry = b.now().Add(b.cooldown)
	}
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(s))
}

// breakerGateway guards every call of the wrapped gateway with a Breaker
// and counts calls per operation.
type breakerGateway struct {
	next    Gateway
	breaker *Breaker
}

// WithBreaker wraps g so calls fail fast while the processor is failing.
func WithBreaker(g Gateway, b *Breaker) Gateway {
	return &breakerGateway{next: g, breaker: b}
}

func (g *breakerGateway) Name() string { return g.next.Name() }

func (g *breakerGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	var out Intent
	err := g.guard(ctx, func() error {
		var err error
		out, err = g.next.CreateIntent(ctx, req)
		return err
	})
	g.count("create_intent", err)
	return out, err
}

func (g *breakerGateway) VerifyIntent(ctx context.Context, externalID string) (Verification, error) {
	var out Verification
	err := g.guard(ctx, func() error {
		var err error
		out, err = g.next.VerifyIntent(ctx, externalID)
		return err
	})
	g.count("verify_intent", err)
	return out, err
}

func (g *breakerGateway) Refund(ctx context.Context, externalID string, amount decimal.Decimal) error {
	err := g.guard(ctx, func() error {
		return g.next.Refund(ctx, externalID, amount)
	})
	g.count("refund", err)
	return err
}

func (g *breakerGateway) CancelIntent(ctx context.Context, externalID string) error {
	err := g.guard(ctx, func() error {
		return g.next.CancelIntent(ctx, externalID)
	})
	g.count("cancel_intent", err)
	return err
}

// guard runs call through the breaker.  Errors the processor answered with
// because of the request itself are returned to the caller but recorded
// as a healthy round trip.
func (g *breakerGateway) guard(ctx context.Context, call func() error) error {
	var clientErr error
	err := g.breaker.Execute(ctx, func() error {
		err := call()
		if err != nil && IsClientError(err) {
			clientErr = err
			return nil
		}
		return err
	})
	if err == nil {
		err = clientErr
	}
	return err
}

// IsClientError reports whether err was caused by the request (unknown id,
// declined card, bad parameters) rather than by the processor being
// unreachable or overloaded.  Transport errors, 5xx and 429 are not client
// errors.
func IsClientError(err error) bool {
	if errors.Is(err, ErrTokenRequired) {
		return true
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		return clientStatus(se.HTTPStatusCode)
	}
	var oe *omise.Error
	if errors.As(err, &oe) {
		return clientStatus(oe.StatusCode)
	}
	return false
}

func clientStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}

func (g *breakerGateway) count(op string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrBreakerOpen):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	metrics.PaymentCalls.WithLabelValues(g.next.Name(), op, result).Inc()
}
