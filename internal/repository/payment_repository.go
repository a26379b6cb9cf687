package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/eventflow/eventflow-api/internal/model"
)

const paymentColumns = `id, booking_id, user_id, amount, currency, provider, external_id, customer_id,
	payment_method, status, receipt_url, paid_at, refunded_at, created_at`

// PaymentRepo records processor payments.  external_id is unique, which is
// what makes payment confirmation idempotent.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

func scanPayment(s rowScanner) (model.Payment, error) {
	var p model.Payment
	err := s.Scan(&p.ID, &p.BookingID, &p.UserID, &p.Amount, &p.Currency, &p.Provider, &p.ExternalID,
		&p.CustomerID, &p.PaymentMethod, &p.Status, &p.ReceiptURL, &p.PaidAt, &p.RefundedAt, &p.CreatedAt)
	return p, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create inserts p outside a transaction and sets its ID.  Used for intent
// bookkeeping that does not touch the booking row.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	return insertPayment(ctx, r.db, p)
}

// CreateTx inserts p inside tx and sets its ID.  A second row for the same
// external id returns ErrDuplicate.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	return insertPayment(ctx, tx, p)
}

func insertPayment(ctx context.Context, ex execer, p *model.Payment) error {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO payments (booking_id, user_id, amount, currency, provider, external_id, customer_id,
			payment_method, status, receipt_url, paid_at, refunded_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.BookingID, p.UserID, p.Amount, p.Currency, p.Provider, p.ExternalID, p.CustomerID,
		p.PaymentMethod, p.Status, p.ReceiptURL, p.PaidAt, p.RefundedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// CompleteTx records the processor's result on a pending row.  p.ID must be
// the pending row; a row that is no longer pending returns ErrNotApplied.
func (r *PaymentRepo) CompleteTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	return requireAffected(tx.ExecContext(ctx,
		`UPDATE payments SET status = ?, amount = ?, currency = ?, customer_id = ?, payment_method = ?,
			receipt_url = ?, paid_at = ? WHERE id = ? AND status = ?`,
		model.PaymentSucceeded, p.Amount, p.Currency, p.CustomerID, p.PaymentMethod,
		p.ReceiptURL, p.PaidAt, p.ID, model.PaymentPending))
}

// ClosePending moves a pending row to failed (intent cancelled) or refunded.
func (r *PaymentRepo) ClosePending(ctx context.Context, id uint64, status string, refundedAt *time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		"UPDATE payments SET status = ?, refunded_at = ? WHERE id = ? AND status = ?",
		status, refundedAt, id, model.PaymentPending))
}

// ListOpenByBooking returns the pending intents of a booking.
func (r *PaymentRepo) ListOpenByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	return r.list(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE booking_id = ? AND status = ? ORDER BY id ASC",
		bookingID, model.PaymentPending)
}

// GetSucceededByBooking returns the succeeded payment of a booking without
// locking it.
func (r *PaymentRepo) GetSucceededByBooking(ctx context.Context, bookingID uint64) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE booking_id = ? AND status = ? LIMIT 1",
		bookingID, model.PaymentSucceeded))
}

// GetByExternalID looks a payment up by the processor's id.
func (r *PaymentRepo) GetByExternalID(ctx context.Context, externalID string) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE external_id = ? LIMIT 1", externalID))
}

// GetSucceededByBookingTx returns the succeeded payment of a booking, locked
// for update, or sql.ErrNoRows.
func (r *PaymentRepo) GetSucceededByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (model.Payment, error) {
	return scanPayment(tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE booking_id = ? AND status = ? LIMIT 1 FOR UPDATE",
		bookingID, model.PaymentSucceeded))
}

// MarkRefundedTx flips a succeeded payment to refunded.
func (r *PaymentRepo) MarkRefundedTx(ctx context.Context, tx *sql.Tx, id uint64, at time.Time) error {
	return requireAffected(tx.ExecContext(ctx,
		"UPDATE payments SET status = ?, refunded_at = ? WHERE id = ? AND status = ?",
		model.PaymentRefunded, at, id, model.PaymentSucceeded))
}

// ListByBooking returns the payments of a booking, oldest first.
func (r *PaymentRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	return r.list(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE booking_id = ? ORDER BY created_at ASC, id ASC", bookingID)
}

func (r *PaymentRepo) list(ctx context.Context, query string, args ...any) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
