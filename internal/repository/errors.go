// Package repository holds the MySQL data access layer.  Lookups that find
// nothing return sql.ErrNoRows unchanged; the sentinel values below let the
// service and handler layers tell the remaining failure modes apart.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrEmailExists is returned when registering an email that is already taken.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate key")

// ErrConflict is returned when a delete or update cannot be performed
// because of dependent rows, such as deleting a ticket type that has
// bookings.
var ErrConflict = errors.New("conflict")

// ErrNotApplied is returned when a conditional UPDATE matched no row: the
// guarded quantity or status was no longer what the caller required.
var ErrNotApplied = errors.New("conditional update not applied")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool { return errors.Is(err, sql.ErrNoRows) }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// requireAffected turns a zero row count into ErrNotApplied.
func requireAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotApplied
	}
	return nil
}

// MaxPage bounds Page so Offset cannot overflow.
const MaxPage = 10000

// Page normalizes pagination input.  Page starts at 1 and is capped at
// MaxPage; Limit is clamped to [1, 100] with def used when unset.
type Page struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds.
func (p Page) Normalize(def int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 {
		p.Limit = def
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}

// Offset is the SQL OFFSET of the page.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }
