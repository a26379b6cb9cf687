package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/eventflow/eventflow-api/internal/model"
)

const bookingColumns = `b.id, b.user_id, b.event_id, b.ticket_id, b.quantity, b.total_amount,
	b.booking_reference, b.status, b.notes, b.attended, b.checkin_time, b.created_at, b.updated_at`

const bookingViewSelect = "SELECT " + bookingColumns + `, e.title, e.start_date, e.venue, t.name, u.name, u.email
	FROM bookings b
	JOIN events e ON e.id = b.event_id
	JOIN tickets t ON t.id = b.ticket_id
	JOIN users u ON u.id = b.user_id`

// BookingRepo persists bookings.  Status changes are conditional on the
// current status so a concurrent transition is detected rather than
// overwritten.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the handle so services can open transactions.
func (r *BookingRepo) DB() *sql.DB { return r.db }

func scanBooking(s rowScanner) (model.Booking, error) {
	var b model.Booking
	err := s.Scan(&b.ID, &b.UserID, &b.EventID, &b.TicketID, &b.Quantity, &b.TotalAmount,
		&b.BookingReference, &b.Status, &b.Notes, &b.Attended, &b.CheckinTime, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func scanBookingView(s rowScanner) (model.BookingView, error) {
	var v model.BookingView
	b := &v.Booking
	err := s.Scan(&b.ID, &b.UserID, &b.EventID, &b.TicketID, &b.Quantity, &b.TotalAmount,
		&b.BookingReference, &b.Status, &b.Notes, &b.Attended, &b.CheckinTime, &b.CreatedAt, &b.UpdatedAt,
		&v.EventTitle, &v.EventStartDate, &v.EventVenue, &v.TicketName, &v.UserName, &v.UserEmail)
	return v, err
}

// CreateTx inserts b as part of the booking transaction and sets its ID.
// A reference collision surfaces as ErrDuplicate.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, event_id, ticket_id, quantity, total_amount, booking_reference, status, notes)
		 VALUES (?,?,?,?,?,?,?,?)`,
		b.UserID, b.EventID, b.TicketID, b.Quantity, b.TotalAmount, b.BookingReference, b.Status, b.Notes)
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
	b.ID = uint64(id)
	return nil
}

// GetByID fetches a booking.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings b WHERE b.id = ? LIMIT 1", id))
}

// GetViewByID fetches a booking with its event, ticket and user columns.
func (r *BookingRepo) GetViewByID(ctx context.Context, id uint64) (model.BookingView, error) {
	return scanBookingView(r.db.QueryRowContext(ctx, bookingViewSelect+" WHERE b.id = ? LIMIT 1", id))
}

// GetViewByReference looks a booking up by its public reference.
func (r *BookingRepo) GetViewByReference(ctx context.Context, ref string) (model.BookingView, error) {
	return scanBookingView(r.db.QueryRowContext(ctx, bookingViewSelect+" WHERE b.booking_reference = ? LIMIT 1", ref))
}

// MarkAttended checks a confirmed booking in.  ErrNotApplied means the
// booking is not confirmed or was already checked in.
func (r *BookingRepo) MarkAttended(ctx context.Context, id uint64, at time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		"UPDATE bookings SET attended = TRUE, checkin_time = ? WHERE id = ? AND status = ? AND attended = FALSE",
		at, id, model.BookingConfirmed))
}

// GetForUpdateTx reads and row-locks a booking inside tx.
func (r *BookingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	return scanBooking(tx.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings b WHERE b.id = ? FOR UPDATE", id))
}

// SetStatusTx moves a booking from one status to another.  ErrNotApplied
// means the booking was not in status from.
func (r *BookingRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to string) error {
	return requireAffected(tx.ExecContext(ctx,
		"UPDATE bookings SET status = ? WHERE id = ? AND status = ?", to, id, from))
}

// ConfirmIfPending confirms a pending booking outside any wider
// transaction.  Used for bookings that need no payment.
func (r *BookingRepo) ConfirmIfPending(ctx context.Context, id uint64) error {
	return requireAffected(r.db.ExecContext(ctx,
		"UPDATE bookings SET status = ? WHERE id = ? AND status = ?",
		model.BookingConfirmed, id, model.BookingPending))
}

// ListByUser returns one page of a user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64, p Page) ([]model.BookingView, int, error) {
	return r.listWhere(ctx, "b.user_id = ?", userID, p)
}

// ListByEvent returns one page of an event's bookings, newest first.
func (r *BookingRepo) ListByEvent(ctx context.Context, eventID uint64, p Page) ([]model.BookingView, int, error) {
	return r.listWhere(ctx, "b.event_id = ?", eventID, p)
}

func (r *BookingRepo) listWhere(ctx context.Context, cond string, arg any, p Page) ([]model.BookingView, int, error) {
	p = p.Normalize(10)
	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings b WHERE "+cond, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.QueryContext(ctx,
		bookingViewSelect+" WHERE "+cond+" ORDER BY b.created_at DESC, b.id DESC LIMIT ? OFFSET ?",
		arg, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []model.BookingView{}
	for rows.Next() {
		v, err := scanBookingView(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// StatsForUser aggregates a user's bookings by status.
func (r *BookingRepo) StatsForUser(ctx context.Context, userID uint64) (model.BookingStats, error) {
	var s model.BookingStats
	err := r.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(status = 'confirmed'), 0),
			COALESCE(SUM(status = 'pending'), 0),
			COALESCE(SUM(status = 'cancelled'), 0),
			COALESCE(SUM(attended = TRUE), 0)
		FROM bookings WHERE user_id = ?`, userID).Scan(&s.Total, &s.Confirmed, &s.Pending, &s.Cancelled, &s.Attended)
	return s, err
}
