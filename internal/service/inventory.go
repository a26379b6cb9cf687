// Package service holds the booking, inventory and payment state machine.
// Everything that changes a shared counter runs inside one database
// transaction together with the booking row that motivates it.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/model"
	"github.com/eventflow/eventflow-api/internal/repository"
)

// Inventory guards ticket availability.  Reserve and Release must be called
// with the ticket row already locked by the surrounding transaction.
type Inventory struct {
	tickets *repository.TicketRepo
}

func NewInventory(tickets *repository.TicketRepo) *Inventory {
	if tickets == nil {
		panic("nil ticket repo")
	}
	return &Inventory{tickets: tickets}
}

// LockTx reads and row-locks a ticket inside tx.
func (i *Inventory) LockTx(ctx context.Context, tx *sql.Tx, ticketID uint64) (model.Ticket, error) {
	return i.tickets.GetForUpdateTx(ctx, tx, ticketID)
}

// CheckAvailable validates a locked ticket snapshot for a purchase of qty.
func (i *Inventory) CheckAvailable(t model.Ticket, qty int, now time.Time) error {
	if !t.IsActive {
		return domain.Business(domain.CodeSoldOut, "Ticket not available or sold out")
	}
	if !t.OnSale(now) {
		return domain.Business(domain.CodeSaleClosed, "Ticket is not on sale")
	}
	if t.AvailableQuantity < qty {
		return domain.Business(domain.CodeSoldOut, "Ticket not available or sold out")
	}
	return nil
}

// Reserve takes qty units.  A lost race on the last units surfaces as the
// same sold-out error as the up-front check.
func (i *Inventory) Reserve(ctx context.Context, tx *sql.Tx, ticketID uint64, qty int) error {
	err := i.tickets.ReserveTx(ctx, tx, ticketID, qty)
	if errors.Is(err, repository.ErrNotApplied) {
		return domain.Business(domain.CodeSoldOut, "Ticket not available or sold out")
	}
	return err
}

// Release gives qty units back, never beyond the ticket's quantity.
func (i *Inventory) Release(ctx context.Context, tx *sql.Tx, ticketID uint64, qty int) error {
	return i.tickets.ReleaseTx(ctx, tx, ticketID, qty)
}
