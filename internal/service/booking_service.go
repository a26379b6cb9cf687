package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/metrics"
	"github.com/eventflow/eventflow-api/internal/model"
	"github.com/eventflow/eventflow-api/internal/payment"
	"github.com/eventflow/eventflow-api/internal/policy"
	"github.com/eventflow/eventflow-api/internal/queue"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/utils"
)

// BookingService implements the booking lifecycle:
//
//	pending -> confirmed            (payment confirmed, or free booking)
//	pending -> cancelled            (tickets released)
//	confirmed -> cancelled          (tickets released, payment refunded)
//
// cancelled and refunded are terminal.
type BookingService struct {
	db        *sql.DB
	events    *repository.EventRepo
	bookings  *repository.BookingRepo
	payments  *repository.PaymentRepo
	inventory *Inventory
	gateway   payment.Gateway
	publisher queue.Publisher

	currency       string
	gatewayTimeout time.Duration
	purge          func(context.Context) error
	now            func() time.Time
}

// BookingOptions carries the payment settings of the service.  Purge drops
// cached catalog responses after availability changes; nil disables it.
type BookingOptions struct {
	Currency       string
	GatewayTimeout time.Duration
	Purge          func(context.Context) error
}

func NewBookingService(
	events *repository.EventRepo,
	tickets *repository.TicketRepo,
	bookings *repository.BookingRepo,
	payments *repository.PaymentRepo,
	gw payment.Gateway,
	pub queue.Publisher,
	opts BookingOptions,
) *BookingService {
	if events == nil || tickets == nil || bookings == nil || payments == nil || gw == nil || pub == nil {
		panic("nil dependency passed to NewBookingService")
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 15 * time.Second
	}
	if opts.Purge == nil {
		opts.Purge = func(context.Context) error { return nil }
	}
	return &BookingService{
		db:             bookings.DB(),
		events:         events,
		bookings:       bookings,
		payments:       payments,
		inventory:      NewInventory(tickets),
		gateway:        gw,
		publisher:      pub,
		currency:       opts.Currency,
		gatewayTimeout: opts.GatewayTimeout,
		purge:          opts.Purge,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookingInput is the request to book Quantity units of a ticket type.
type CreateBookingInput struct {
	EventID  uint64
	TicketID uint64
	Quantity int
	Notes    *string
}

// Create books tickets.  The event and ticket rows are locked, every
// precondition is re-checked on the locked snapshot and the counters are
// moved with conditional updates, so a failed check leaves nothing behind.
func (s *BookingService) Create(ctx context.Context, id policy.Identity, in CreateBookingInput) (model.Booking, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 1 {
		return model.Booking{}, domain.Validation("quantity", "Quantity must be at least 1")
	}
	if in.EventID == 0 || in.TicketID == 0 {
		return model.Booking{}, domain.Validation("event_id", "Please provide event_id and ticket_id")
	}
	ref, err := utils.NewBookingReference()
	if err != nil {
		return model.Booking{}, fmt.Errorf("booking reference: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	ev, err := s.events.GetForUpdateTx(ctx, tx, in.EventID)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.Booking{}, domain.NotFound("event", "Event not found or not available")
		}
		return model.Booking{}, err
	}
	if !ev.IsPublished && !policy.Can(&id, policy.BookUnpublishedEvent, policy.EventResource(ev)) {
		return model.Booking{}, domain.NotFound("event", "Event not found or not available")
	}
	tk, err := s.inventory.LockTx(ctx, tx, in.TicketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.Booking{}, domain.Validation("ticket_id", "Invalid ticket for this event")
		}
		return model.Booking{}, err
	}
	if tk.EventID != ev.ID {
		return model.Booking{}, domain.Validation("ticket_id", "Invalid ticket for this event")
	}
	if err := s.inventory.CheckAvailable(tk, in.Quantity, s.now()); err != nil {
		s.reject(err)
		return model.Booking{}, err
	}
	if ev.CurrentAttendees+in.Quantity > ev.MaxAttendees {
		err := domain.Business(domain.CodeCapacity, "Event has reached maximum capacity")
		s.reject(err)
		return model.Booking{}, err
	}

	if err := s.inventory.Reserve(ctx, tx, tk.ID, in.Quantity); err != nil {
		s.reject(err)
		return model.Booking{}, err
	}
	if err := s.events.AddAttendeesTx(ctx, tx, ev.ID, in.Quantity); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			err = domain.Business(domain.CodeCapacity, "Event has reached maximum capacity")
			s.reject(err)
		}
		return model.Booking{}, err
	}

	now := s.now()
	b := model.Booking{
		UserID:           id.UserID,
		EventID:          ev.ID,
		TicketID:         tk.ID,
		Quantity:         in.Quantity,
		TotalAmount:      tk.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
		BookingReference: ref,
		Status:           model.BookingPending,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.bookings.CreateTx(ctx, tx, &b); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Booking{}, domain.Conflict("booking", "Booking reference collision, please retry")
		}
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true
	s.invalidate(ctx)

	metrics.Bookings.WithLabelValues("created").Inc()
	s.publish(queue.KeyBookingCreated, bookingEvent(b, id.Email, ev.Title, now))
	return b, nil
}

// PaymentIntentResult is the outcome of RequestPayment.  Intent is nil when
// the booking was free and got confirmed directly.
type PaymentIntentResult struct {
	Booking model.Booking   `json:"booking"`
	Intent  *payment.Intent `json:"payment,omitempty"`
	Free    bool            `json:"free"`
}

// RequestPayment starts a payment for a pending booking.  Bookings with a
// zero total are confirmed without contacting the processor.  token is only
// used by processors that charge a client-side token.
func (s *BookingService) RequestPayment(ctx context.Context, id policy.Identity, bookingID uint64, token string) (PaymentIntentResult, error) {
	v, err := s.bookings.GetViewByID(ctx, bookingID)
	if err != nil {
		return PaymentIntentResult{}, notFoundBooking(err)
	}
	b := v.Booking
	if !policy.Can(&id, policy.PayBooking, policy.BookingResource(b)) {
		return PaymentIntentResult{}, domain.Forbidden("You do not have permission to pay for this booking")
	}
	if err := payable(b); err != nil {
		return PaymentIntentResult{}, err
	}

	if !b.TotalAmount.IsPositive() {
		if err := s.bookings.ConfirmIfPending(ctx, b.ID); err != nil {
			if errors.Is(err, repository.ErrNotApplied) {
				return PaymentIntentResult{}, domain.Conflict("booking", "Booking is no longer pending")
			}
			return PaymentIntentResult{}, err
		}
		b.Status = model.BookingConfirmed
		metrics.Bookings.WithLabelValues("confirmed").Inc()
		s.publish(queue.KeyBookingConfirmed, bookingEvent(b, v.UserEmail, v.EventTitle, s.now()))
		return PaymentIntentResult{Booking: b, Free: true}, nil
	}

	pctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	intent, err := s.gateway.CreateIntent(pctx, payment.IntentRequest{
		Amount:   b.TotalAmount,
		Currency: s.currency,
		Token:    token,
		Metadata: map[string]string{
			"booking_id":        strconv.FormatUint(b.ID, 10),
			"booking_reference": b.BookingReference,
			"user_id":           strconv.FormatUint(b.UserID, 10),
			"user_email":        v.UserEmail,
		},
	})
	if err != nil {
		if errors.Is(err, payment.ErrTokenRequired) {
			return PaymentIntentResult{}, domain.Business(domain.CodeTokenRequired, "A card or source token is required")
		}
		return PaymentIntentResult{}, domain.Upstream(s.gateway.Name(), "Payment processor error", err)
	}

	// The pending row lets Cancel find and close the intent later.
	open := model.Payment{
		BookingID:  b.ID,
		UserID:     b.UserID,
		Amount:     b.TotalAmount,
		Currency:   normalizeCurrency(s.currency),
		Provider:   s.gateway.Name(),
		ExternalID: intent.ExternalID,
		Status:     model.PaymentPending,
		CreatedAt:  s.now(),
	}
	if err := s.payments.Create(ctx, &open); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		log.Warn().Err(err).Uint64("booking_id", b.ID).Str("external_id", intent.ExternalID).
			Msg("record open payment intent")
	}
	return PaymentIntentResult{Booking: b, Intent: &intent}, nil
}

// ConfirmResult is the outcome of ConfirmPayment.
type ConfirmResult struct {
	Booking          model.Booking `json:"booking"`
	Payment          model.Payment `json:"payment"`
	AlreadyConfirmed bool          `json:"already_confirmed"`
}

// ConfirmPayment records a payment the processor reports as succeeded and
// confirms the booking.  Repeated calls with the same intent write no second
// payment row.  A succeeded intent that cannot be kept, because the booking
// was cancelled or is already paid by another intent, is refunded.
func (s *BookingService) ConfirmPayment(ctx context.Context, id policy.Identity, bookingID uint64, externalID string) (ConfirmResult, error) {
	if externalID == "" {
		return ConfirmResult{}, domain.Validation("payment_intent_id", "Please provide paymentIntentId")
	}
	v, err := s.bookings.GetViewByID(ctx, bookingID)
	if err != nil {
		return ConfirmResult{}, notFoundBooking(err)
	}
	b := v.Booking
	if !policy.Can(&id, policy.PayBooking, policy.BookingResource(b)) {
		return ConfirmResult{}, domain.Forbidden("You do not have permission to pay for this booking")
	}

	// Already recorded: answer without asking the processor again.
	var open *model.Payment
	if p, err := s.payments.GetByExternalID(ctx, externalID); err == nil {
		if p.BookingID != b.ID {
			return ConfirmResult{}, domain.Business(domain.CodePaymentMismatch, "Payment does not belong to this booking")
		}
		switch {
		case p.Status == model.PaymentSucceeded && b.Status == model.BookingConfirmed:
			return ConfirmResult{Booking: b, Payment: p, AlreadyConfirmed: true}, nil
		case p.Status == model.PaymentRefunded:
			return ConfirmResult{}, domain.Conflict("payment", "Payment was refunded")
		case p.Status == model.PaymentPending:
			open = &p
		}
	} else if !repository.IsNotFound(err) {
		return ConfirmResult{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	ver, err := s.gateway.VerifyIntent(pctx, externalID)
	cancel()
	if err != nil {
		return ConfirmResult{}, s.verifyError(err)
	}
	if !ver.Succeeded {
		if b.IsTerminal() {
			return ConfirmResult{}, domain.Conflict("booking", "Booking is cancelled")
		}
		metrics.Bookings.WithLabelValues("payment_failed").Inc()
		return ConfirmResult{}, domain.Business(domain.CodePaymentFailed, "Payment verification failed")
	}
	if ver.Metadata["booking_id"] != strconv.FormatUint(b.ID, 10) {
		return ConfirmResult{}, domain.Business(domain.CodePaymentMismatch, "Payment does not belong to this booking")
	}
	if normalizeCurrency(ver.Currency) != normalizeCurrency(s.currency) {
		return ConfirmResult{}, domain.Business(domain.CodePaymentMismatch, "Payment currency does not match booking currency")
	}
	if ver.Amount.LessThan(b.TotalAmount) {
		return ConfirmResult{}, domain.Business(domain.CodePaymentMismatch, "Payment amount does not match booking total")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ConfirmResult{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	locked, err := s.bookings.GetForUpdateTx(ctx, tx, b.ID)
	if err != nil {
		return ConfirmResult{}, notFoundBooking(err)
	}
	if locked.IsTerminal() {
		_ = tx.Rollback()
		return ConfirmResult{}, s.refundStray(ctx, locked, externalID, ver, open, "Booking is cancelled, the payment was refunded")
	}
	if existing, err := s.payments.GetSucceededByBookingTx(ctx, tx, b.ID); err == nil {
		if existing.ExternalID == externalID {
			return ConfirmResult{Booking: locked, Payment: existing, AlreadyConfirmed: true}, nil
		}
		_ = tx.Rollback()
		return ConfirmResult{}, s.refundStray(ctx, locked, externalID, ver, open, "Booking is already paid, the payment was refunded")
	} else if !repository.IsNotFound(err) {
		return ConfirmResult{}, err
	}

	paidAt := s.now()
	p := model.Payment{
		BookingID:     b.ID,
		UserID:        b.UserID,
		Amount:        ver.Amount,
		Currency:      ver.Currency,
		Provider:      s.gateway.Name(),
		ExternalID:    externalID,
		CustomerID:    optional(ver.CustomerID),
		PaymentMethod: optional(ver.Method),
		Status:        model.PaymentSucceeded,
		ReceiptURL:    optional(ver.ReceiptURL),
		PaidAt:        &paidAt,
		CreatedAt:     paidAt,
	}
	if open != nil {
		p.ID = open.ID
		p.CreatedAt = open.CreatedAt
		err = s.payments.CompleteTx(ctx, tx, &p)
	} else {
		err = s.payments.CreateTx(ctx, tx, &p)
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) || errors.Is(err, repository.ErrNotApplied) {
			return ConfirmResult{}, domain.Conflict("payment", "Payment was already recorded")
		}
		return ConfirmResult{}, err
	}
	if locked.Status == model.BookingPending {
		if err := s.bookings.SetStatusTx(ctx, tx, b.ID, model.BookingPending, model.BookingConfirmed); err != nil {
			return ConfirmResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ConfirmResult{}, err
	}
	committed = true

	locked.Status = model.BookingConfirmed
	metrics.Bookings.WithLabelValues("confirmed").Inc()
	ev := bookingEvent(locked, v.UserEmail, v.EventTitle, paidAt)
	ev.ExternalID = externalID
	s.publish(queue.KeyBookingConfirmed, ev)
	return ConfirmResult{Booking: locked, Payment: p}, nil
}

// refundStray returns the money of a succeeded intent the booking cannot
// keep and records it as a refunded payment.  The returned error is what
// the caller reports.
func (s *BookingService) refundStray(ctx context.Context, b model.Booking, externalID string, ver payment.Verification, open *model.Payment, msg string) error {
	rctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	err := s.gateway.Refund(rctx, externalID, ver.Amount)
	cancel()
	if err != nil {
		log.Error().Err(err).Uint64("booking_id", b.ID).Str("external_id", externalID).
			Msg("succeeded payment could not be recorded or refunded")
		return domain.Upstream(s.gateway.Name(), "Payment could not be applied and the refund failed", err)
	}
	metrics.Bookings.WithLabelValues("payment_refunded").Inc()

	at := s.now()
	if open != nil {
		err = s.payments.ClosePending(ctx, open.ID, model.PaymentRefunded, &at)
	} else {
		err = s.payments.Create(ctx, &model.Payment{
			BookingID:     b.ID,
			UserID:        b.UserID,
			Amount:        ver.Amount,
			Currency:      ver.Currency,
			Provider:      s.gateway.Name(),
			ExternalID:    externalID,
			CustomerID:    optional(ver.CustomerID),
			PaymentMethod: optional(ver.Method),
			Status:        model.PaymentRefunded,
			ReceiptURL:    optional(ver.ReceiptURL),
			PaidAt:        &at,
			RefundedAt:    &at,
			CreatedAt:     at,
		})
	}
	if err != nil && !errors.Is(err, repository.ErrDuplicate) && !errors.Is(err, repository.ErrNotApplied) {
		log.Error().Err(err).Uint64("booking_id", b.ID).Str("external_id", externalID).
			Msg("refund issued but payment row not written")
	}
	return domain.Conflict("payment", msg)
}

// verifyError maps a processor error on VerifyIntent.  An intent the
// processor does not know is the caller's mistake, not an outage.
func (s *BookingService) verifyError(err error) error {
	if payment.IsClientError(err) {
		return domain.Business(domain.CodePaymentFailed, "Payment could not be verified")
	}
	return domain.Upstream(s.gateway.Name(), "Payment processor error", err)
}

// Cancel cancels a booking, gives its tickets and attendee spots back,
// closes open intents and refunds a succeeded payment.  Processor calls
// happen before any row is locked; the refund is idempotent at the
// processor, so a retried Cancel after a failed commit is safe.  When a
// processor call fails nothing changes.
func (s *BookingService) Cancel(ctx context.Context, id policy.Identity, bookingID uint64) (model.Booking, error) {
	v, err := s.bookings.GetViewByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, notFoundBooking(err)
	}
	if !policy.Can(&id, policy.CancelBooking, policy.BookingResource(v.Booking)) {
		return model.Booking{}, domain.Forbidden("You do not have permission to cancel this booking")
	}
	if v.IsTerminal() {
		return model.Booking{}, domain.Conflict("booking", "Booking is already cancelled")
	}

	if err := s.closeOpenIntents(ctx, v.Booking); err != nil {
		return model.Booking{}, err
	}
	var refunded *model.Payment
	paid, err := s.payments.GetSucceededByBooking(ctx, v.ID)
	switch {
	case err == nil:
		rctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		rerr := s.gateway.Refund(rctx, paid.ExternalID, paid.Amount)
		cancel()
		if rerr != nil {
			return model.Booking{}, domain.Upstream(s.gateway.Name(), "Refund failed, booking not cancelled", rerr)
		}
		refunded = &paid
	case !repository.IsNotFound(err):
		return model.Booking{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	b, err := s.bookings.GetForUpdateTx(ctx, tx, bookingID)
	if err != nil {
		return model.Booking{}, notFoundBooking(err)
	}
	if b.IsTerminal() {
		return model.Booking{}, domain.Conflict("booking", "Booking is already cancelled")
	}
	locked, err := s.payments.GetSucceededByBookingTx(ctx, tx, b.ID)
	switch {
	case err == nil:
		if refunded == nil || locked.ID != refunded.ID {
			// paid while the refund was in flight
			return model.Booking{}, domain.Conflict("booking", "Booking changed while cancelling, please retry")
		}
		if err := s.payments.MarkRefundedTx(ctx, tx, locked.ID, s.now()); err != nil {
			return model.Booking{}, err
		}
	case !repository.IsNotFound(err):
		return model.Booking{}, err
	}

	// event before ticket, the same order Create locks them in
	if err := s.events.RemoveAttendeesTx(ctx, tx, b.EventID, b.Quantity); err != nil {
		return model.Booking{}, err
	}
	if err := s.inventory.Release(ctx, tx, b.TicketID, b.Quantity); err != nil {
		return model.Booking{}, err
	}
	if err := s.bookings.SetStatusTx(ctx, tx, b.ID, b.Status, model.BookingCancelled); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		if refunded != nil {
			log.Error().Err(err).Uint64("booking_id", b.ID).Str("external_id", refunded.ExternalID).
				Msg("refund issued but cancellation not committed")
		}
		return model.Booking{}, err
	}
	committed = true
	s.invalidate(ctx)

	b.Status = model.BookingCancelled
	b.UpdatedAt = s.now()
	metrics.Bookings.WithLabelValues("cancelled").Inc()
	ev := bookingEvent(b, v.UserEmail, v.EventTitle, b.UpdatedAt)
	ev.Refunded = refunded != nil
	s.publish(queue.KeyBookingCancelled, ev)
	return b, nil
}

// closeOpenIntents cancels the intents RequestPayment started for b.  An
// intent that collected money without being confirmed is refunded.
func (s *BookingService) closeOpenIntents(ctx context.Context, b model.Booking) error {
	open, err := s.payments.ListOpenByBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	for _, p := range open {
		pctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		status, at := model.PaymentFailed, (*time.Time)(nil)
		err := s.gateway.CancelIntent(pctx, p.ExternalID)
		if errors.Is(err, payment.ErrIntentSucceeded) {
			err = s.gateway.Refund(pctx, p.ExternalID, p.Amount)
			now := s.now()
			status, at = model.PaymentRefunded, &now
		}
		cancel()
		if err != nil {
			return domain.Upstream(s.gateway.Name(), "Could not close open payment, booking not cancelled", err)
		}
		if err := s.payments.ClosePending(ctx, p.ID, status, at); err != nil && !errors.Is(err, repository.ErrNotApplied) {
			return err
		}
	}
	return nil
}

// Get returns one booking to its owner or an admin.
func (s *BookingService) Get(ctx context.Context, id policy.Identity, bookingID uint64) (model.BookingView, error) {
	v, err := s.bookings.GetViewByID(ctx, bookingID)
	if err != nil {
		return model.BookingView{}, notFoundBooking(err)
	}
	if !policy.Can(&id, policy.ViewBooking, policy.BookingResource(v.Booking)) {
		return model.BookingView{}, domain.Forbidden("You do not have permission to view this booking")
	}
	return v, nil
}

// GetByReference returns a booking by its public reference to its owner,
// the event organizer or an admin.
func (s *BookingService) GetByReference(ctx context.Context, id policy.Identity, ref string) (model.BookingView, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.BookingView{}, domain.Validation("reference", "Please provide a booking reference")
	}
	v, err := s.bookings.GetViewByReference(ctx, ref)
	if err != nil {
		return model.BookingView{}, notFoundBooking(err)
	}
	if policy.Can(&id, policy.ViewBooking, policy.BookingResource(v.Booking)) {
		return v, nil
	}
	ev, err := s.events.GetByID(ctx, v.EventID)
	if err != nil && !repository.IsNotFound(err) {
		return model.BookingView{}, err
	}
	if err != nil || !policy.Can(&id, policy.ViewEventBookings, policy.EventResource(ev)) {
		return model.BookingView{}, domain.Forbidden("You do not have permission to view this booking")
	}
	return v, nil
}

// CheckIn marks a confirmed booking as attended.  Only the event organizer
// or an admin may check guests in, and each booking checks in once.
func (s *BookingService) CheckIn(ctx context.Context, id policy.Identity, bookingID uint64) (model.BookingView, error) {
	v, err := s.bookings.GetViewByID(ctx, bookingID)
	if err != nil {
		return model.BookingView{}, notFoundBooking(err)
	}
	ev, err := s.events.GetByID(ctx, v.EventID)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.BookingView{}, domain.NotFound("event", "Event not found")
		}
		return model.BookingView{}, err
	}
	if !policy.Can(&id, policy.CheckInBooking, policy.EventResource(ev)) {
		return model.BookingView{}, domain.Forbidden("You do not have permission to check in this booking")
	}
	switch {
	case v.Attended:
		return model.BookingView{}, domain.Conflict("booking", "Booking is already checked in")
	case v.Status != model.BookingConfirmed:
		return model.BookingView{}, domain.Conflict("booking", "Only confirmed bookings can be checked in")
	}

	at := s.now()
	if err := s.bookings.MarkAttended(ctx, v.ID, at); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			return model.BookingView{}, domain.Conflict("booking", "Booking is already checked in")
		}
		return model.BookingView{}, err
	}
	v.Attended = true
	v.CheckinTime = &at
	metrics.Bookings.WithLabelValues("checked_in").Inc()
	return v, nil
}

// ListMine returns the caller's bookings, newest first.
func (s *BookingService) ListMine(ctx context.Context, id policy.Identity, p repository.Page) ([]model.BookingView, int, error) {
	return s.bookings.ListByUser(ctx, id.UserID, p)
}

// Stats aggregates the caller's bookings.
func (s *BookingService) Stats(ctx context.Context, id policy.Identity) (model.BookingStats, error) {
	return s.bookings.StatsForUser(ctx, id.UserID)
}

// ListForEvent returns the bookings of an event to its organizer or an admin.
func (s *BookingService) ListForEvent(ctx context.Context, id policy.Identity, eventID uint64, p repository.Page) ([]model.BookingView, int, error) {
	ev, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, 0, domain.NotFound("event", "Event not found")
		}
		return nil, 0, err
	}
	if !policy.Can(&id, policy.ViewEventBookings, policy.EventResource(ev)) {
		return nil, 0, domain.Forbidden("You do not have permission to view these bookings")
	}
	return s.bookings.ListByEvent(ctx, eventID, p)
}

func payable(b model.Booking) error {
	switch b.Status {
	case model.BookingConfirmed:
		return domain.Conflict("booking", "Booking is already confirmed")
	case model.BookingCancelled, model.BookingRefunded:
		return domain.Conflict("booking", "Booking is cancelled")
	}
	return nil
}

func notFoundBooking(err error) error {
	if repository.IsNotFound(err) {
		return domain.NotFound("booking", "Booking not found")
	}
	return err
}

func (s *BookingService) invalidate(ctx context.Context) {
	if err := s.purge(ctx); err != nil {
		log.Warn().Err(err).Msg("purge response cache")
	}
}

func normalizeCurrency(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

func (s *BookingService) reject(err error) {
	var be *domain.BusinessError
	if errors.As(err, &be) {
		metrics.Bookings.WithLabelValues(be.Code).Inc()
	}
}

// publish runs after commit with its own deadline; a broker failure never
// fails the request.
func (s *BookingService) publish(key string, ev queue.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, key, ev); err != nil {
		log.Warn().Err(err).Str("routing_key", key).Uint64("booking_id", ev.BookingID).Msg("publish booking event failed")
	}
}

func bookingEvent(b model.Booking, email, title string, at time.Time) queue.BookingEvent {
	return queue.BookingEvent{
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		Status:           b.Status,
		UserID:           b.UserID,
		UserEmail:        email,
		EventID:          b.EventID,
		EventTitle:       title,
		TicketID:         b.TicketID,
		Quantity:         b.Quantity,
		TotalAmount:      b.TotalAmount,
		OccurredAt:       at,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
