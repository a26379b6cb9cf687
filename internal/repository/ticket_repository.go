package repository

import (
	"context"
	"database/sql"

	"github.com/eventflow/eventflow-api/internal/model"
)

const ticketColumns = `id, event_id, name, description, price, quantity, available_quantity,
	sale_start, sale_end, is_active, created_at, updated_at`

// TicketRepo manages ticket types and their available quantity.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

func scanTicket(s rowScanner) (model.Ticket, error) {
	var t model.Ticket
	err := s.Scan(&t.ID, &t.EventID, &t.Name, &t.Description, &t.Price, &t.Quantity, &t.AvailableQuantity,
		&t.SaleStart, &t.SaleEnd, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// Create inserts t with its full quantity available and sets its ID.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO tickets (event_id, name, description, price, quantity, available_quantity, sale_start, sale_end, is_active)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		t.EventID, t.Name, t.Description, t.Price, t.Quantity, t.Quantity, t.SaleStart, t.SaleEnd, t.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	t.AvailableQuantity = t.Quantity
	return nil
}

// GetByID fetches a ticket type.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	return scanTicket(r.db.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ? LIMIT 1", id))
}

// GetForUpdateTx reads and row-locks a ticket inside tx.
func (r *TicketRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Ticket, error) {
	return scanTicket(tx.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ? FOR UPDATE", id))
}

// ListByEvent returns the ticket types of an event, cheapest first.
func (r *TicketRepo) ListByEvent(ctx context.Context, eventID uint64, includeInactive bool) ([]model.Ticket, error) {
	q := "SELECT " + ticketColumns + " FROM tickets WHERE event_id = ?"
	if !includeInactive {
		q += " AND is_active = TRUE"
	}
	rows, err := r.db.QueryContext(ctx, q+" ORDER BY price ASC, id ASC", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update writes the editable columns of t.  A change of quantity moves
// available_quantity by the same delta; when that would drop below zero
// (more units sold than the new quantity) ErrNotApplied is returned.
func (r *TicketRepo) Update(ctx context.Context, t *model.Ticket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	current, err := r.GetForUpdateTx(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	available := current.AvailableQuantity + (t.Quantity - current.Quantity)
	if available < 0 {
		return ErrNotApplied
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tickets SET name=?, description=?, price=?, quantity=?, available_quantity=?, sale_start=?, sale_end=?, is_active=?
		 WHERE id=?`,
		t.Name, t.Description, t.Price, t.Quantity, available, t.SaleStart, t.SaleEnd, t.IsActive, t.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	t.AvailableQuantity = available
	t.EventID = current.EventID
	return nil
}

// Delete removes a ticket type that was never booked.  Ticket types with
// bookings return ErrConflict; deactivate them instead.
func (r *TicketRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE ticket_id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM tickets WHERE id = ?", id)
	if err := requireAffected(res, err); err != nil {
		if err == ErrNotApplied {
			return sql.ErrNoRows
		}
		return err
	}
	return nil
}

// ReserveTx takes qty units.  The decrement is conditional on enough units
// being left, so two transactions racing for the last unit cannot both
// succeed; the loser gets ErrNotApplied.
func (r *TicketRepo) ReserveTx(ctx context.Context, tx *sql.Tx, id uint64, qty int) error {
	return requireAffected(tx.ExecContext(ctx,
		"UPDATE tickets SET available_quantity = available_quantity - ? WHERE id = ? AND available_quantity >= ?",
		qty, id, qty))
}

// ReleaseTx returns qty units, capped at the ticket's total quantity.
func (r *TicketRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, id uint64, qty int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE tickets SET available_quantity = LEAST(quantity, available_quantity + ?) WHERE id = ?",
		qty, id)
	return err
}
