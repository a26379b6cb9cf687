// Package policy is the single place where the API decides whether an
// authenticated identity may perform an action on a resource.
package policy

import "github.com/eventflow/eventflow-api/internal/model"

// Identity is the authenticated caller as carried by the access token.
type Identity struct {
	UserID uint64
	Email  string
	Role   string
}

// IsAdmin reports whether the identity has the admin role.
func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

// Action names an operation guarded by the policy.
type Action string

const (
	CreateEvent          Action = "event:create"
	UpdateEvent          Action = "event:update"
	DeleteEvent          Action = "event:delete"
	ViewUnpublishedEvent Action = "event:view_unpublished"
	BookUnpublishedEvent Action = "event:book_unpublished"
	ManageTickets        Action = "ticket:manage"
	ViewEventBookings    Action = "event:view_bookings"
	ViewBooking          Action = "booking:view"
	CancelBooking        Action = "booking:cancel"
	PayBooking           Action = "booking:pay"
	CheckInBooking       Action = "booking:check_in"
	ManageUsers          Action = "user:manage"
)

// Resource describes the target of an action.  OwnerID is the booking's user
// or the event's organizer; zero means the resource has no owner.
type Resource struct {
	OwnerID uint64
}

// EventResource builds the resource for an event.
func EventResource(e model.Event) Resource {
	if e.OrganizerID == nil {
		return Resource{}
	}
	return Resource{OwnerID: *e.OrganizerID}
}

// BookingResource builds the resource for a booking.
func BookingResource(b model.Booking) Resource {
	return Resource{OwnerID: b.UserID}
}

// Can reports whether id may perform action on res.  A nil identity is an
// anonymous caller and is denied every guarded action.
func Can(id *Identity, action Action, res Resource) bool {
	if id == nil || id.UserID == 0 {
		return false
	}
	owns := res.OwnerID != 0 && res.OwnerID == id.UserID

	switch action {
	case CreateEvent, BookUnpublishedEvent, ManageUsers:
		return id.IsAdmin()
	case UpdateEvent, DeleteEvent, ViewUnpublishedEvent, ManageTickets, ViewEventBookings, CheckInBooking:
		return id.IsAdmin() || owns
	case ViewBooking, CancelBooking, PayBooking:
		return id.IsAdmin() || owns
	}
	return false
}
