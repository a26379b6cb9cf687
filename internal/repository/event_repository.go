package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/eventflow/eventflow-api/internal/model"
)

const eventColumns = `e.id, e.title, e.description, e.short_description, e.category, e.venue,
	e.address, e.city, e.country, e.start_date, e.end_date, e.image_url, e.thumbnail_url,
	e.max_attendees, e.current_attendees, e.price, e.is_free, e.is_featured, e.is_published,
	e.organizer_id, e.created_at, e.updated_at`

const eventSelect = "SELECT " + eventColumns + ", u.name FROM events e LEFT JOIN users u ON u.id = e.organizer_id"

// EventRepo provides persistence for events and maintains their attendee
// counter.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the handle so services can open transactions.
func (r *EventRepo) DB() *sql.DB { return r.db }

func scanEvent(s rowScanner) (model.Event, error) {
	var e model.Event
	err := s.Scan(&e.ID, &e.Title, &e.Description, &e.ShortDescription, &e.Category, &e.Venue,
		&e.Address, &e.City, &e.Country, &e.StartDate, &e.EndDate, &e.ImageURL, &e.ThumbnailURL,
		&e.MaxAttendees, &e.CurrentAttendees, &e.Price, &e.IsFree, &e.IsFeatured, &e.IsPublished,
		&e.OrganizerID, &e.CreatedAt, &e.UpdatedAt, &e.OrganizerName)
	return e, err
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	out := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create inserts e and sets its ID.  CurrentAttendees always starts at zero.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (title, description, short_description, category, venue, address, city,
		country, start_date, end_date, image_url, thumbnail_url, max_attendees, price, is_free, is_featured,
		is_published, organizer_id) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	res, err := r.db.ExecContext(ctx, q, e.Title, e.Description, e.ShortDescription, e.Category, e.Venue,
		e.Address, e.City, e.Country, e.StartDate, e.EndDate, e.ImageURL, e.ThumbnailURL, e.MaxAttendees,
		e.Price, e.IsFree, e.IsFeatured, e.IsPublished, e.OrganizerID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.CurrentAttendees = 0
	return nil
}

// GetByID returns the event with its organizer name.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (model.Event, error) {
	return scanEvent(r.db.QueryRowContext(ctx, eventSelect+" WHERE e.id = ? LIMIT 1", id))
}

// GetForUpdateTx reads and row-locks the event inside tx.
func (r *EventRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Event, error) {
	return scanEvent(tx.QueryRowContext(ctx,
		"SELECT "+eventColumns+", NULL FROM events e WHERE e.id = ? FOR UPDATE", id))
}

// EventFilter holds listing filters.  ViewerID and ViewerIsAdmin decide which
// unpublished events are visible: admins see all, authenticated users also
// see the events they organize, anonymous callers see published ones only.
type EventFilter struct {
	Category      string
	IsFeatured    *bool
	OrganizerID   *uint64
	StartFrom     *time.Time
	StartTo       *time.Time
	Search        string
	ViewerID      uint64
	ViewerIsAdmin bool
	Page          Page
}

func (f EventFilter) where() (string, []any) {
	where := []string{}
	args := []any{}

	switch {
	case f.ViewerIsAdmin:
	case f.ViewerID > 0:
		where = append(where, "(e.is_published = TRUE OR e.organizer_id = ?)")
		args = append(args, f.ViewerID)
	default:
		where = append(where, "e.is_published = TRUE")
	}
	if f.Category != "" {
		where = append(where, "e.category = ?")
		args = append(args, f.Category)
	}
	if f.IsFeatured != nil {
		where = append(where, "e.is_featured = ?")
		args = append(args, *f.IsFeatured)
	}
	if f.OrganizerID != nil {
		where = append(where, "e.organizer_id = ?")
		args = append(args, *f.OrganizerID)
	}
	if f.StartFrom != nil {
		where = append(where, "e.start_date >= ?")
		args = append(args, *f.StartFrom)
	}
	if f.StartTo != nil {
		where = append(where, "e.start_date <= ?")
		args = append(args, *f.StartTo)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "(LOWER(e.title) LIKE ? OR LOWER(e.description) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}

	if len(where) == 0 {
		return "1=1", args
	}
	return strings.Join(where, " AND "), args
}

// List returns one page of events ordered by start date and the total count.
func (r *EventRepo) List(ctx context.Context, f EventFilter) ([]model.Event, int, error) {
	f.Page = f.Page.Normalize(10)
	cond, args := f.where()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events e WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(append([]any{}, args...), f.Page.Limit, f.Page.Offset())
	rows, err := r.db.QueryContext(ctx,
		eventSelect+" WHERE "+cond+" ORDER BY e.start_date ASC, e.id ASC LIMIT ? OFFSET ?", dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Featured lists upcoming published featured events.
func (r *EventRepo) Featured(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, eventSelect+
		" WHERE e.is_published = TRUE AND e.is_featured = TRUE AND e.start_date > UTC_TIMESTAMP()"+
		" ORDER BY e.start_date ASC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Upcoming lists published events that have not started yet.
func (r *EventRepo) Upcoming(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, eventSelect+
		" WHERE e.is_published = TRUE AND e.start_date > UTC_TIMESTAMP()"+
		" ORDER BY e.start_date ASC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Categories counts published events per category.
func (r *EventRepo) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM events WHERE is_published = TRUE GROUP BY category ORDER BY category ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CategoryCount{}
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update writes the editable columns of e.  The update is refused with
// ErrNotApplied when the new capacity is below the current attendee count.
func (r *EventRepo) Update(ctx context.Context, e *model.Event) error {
	const q = `UPDATE events SET title=?, description=?, short_description=?, category=?, venue=?, address=?,
		city=?, country=?, start_date=?, end_date=?, image_url=?, thumbnail_url=?, max_attendees=?, price=?,
		is_free=?, is_featured=?, is_published=? WHERE id=? AND current_attendees <= ?`
	res, err := r.db.ExecContext(ctx, q, e.Title, e.Description, e.ShortDescription, e.Category, e.Venue,
		e.Address, e.City, e.Country, e.StartDate, e.EndDate, e.ImageURL, e.ThumbnailURL, e.MaxAttendees,
		e.Price, e.IsFree, e.IsFeatured, e.IsPublished, e.ID, e.MaxAttendees)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the row is gone, the capacity guard failed or nothing
		// changed; MySQL reports 0 for identical values too.
		var current, max int
		err := r.db.QueryRowContext(ctx,
			"SELECT current_attendees, max_attendees FROM events WHERE id = ?", e.ID).Scan(&current, &max)
		if err != nil {
			return err
		}
		if current > e.MaxAttendees {
			return ErrNotApplied
		}
	}
	return nil
}

// Delete removes an event unless it still has pending or confirmed bookings,
// in which case ErrConflict is returned.
func (r *EventRepo) Delete(ctx context.Context, id uint64) error {
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
	if _, err := r.GetForUpdateTx(ctx, tx, id); err != nil {
		return err
	}
	var active int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE event_id = ? AND status IN ('pending','confirmed')", id).Scan(&active); err != nil {
		return err
	}
	if active > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// AddAttendeesTx increments the attendee counter by qty.  The update only
// applies while the result stays within max_attendees; otherwise
// ErrNotApplied is returned and the counter is untouched.
func (r *EventRepo) AddAttendeesTx(ctx context.Context, tx *sql.Tx, id uint64, qty int) error {
	return requireAffected(tx.ExecContext(ctx,
		"UPDATE events SET current_attendees = current_attendees + ? WHERE id = ? AND current_attendees + ? <= max_attendees",
		qty, id, qty))
}

// RemoveAttendeesTx decrements the attendee counter by qty, never below zero.
func (r *EventRepo) RemoveAttendeesTx(ctx context.Context, tx *sql.Tx, id uint64, qty int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE events SET current_attendees = CASE WHEN current_attendees >= ? THEN current_attendees - ? ELSE 0 END WHERE id = ?",
		qty, qty, id)
	return err
}
