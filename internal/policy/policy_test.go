package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eventflow/eventflow-api/internal/model"
)

func TestCan(t *testing.T) {
	admin := &Identity{UserID: 1, Role: model.RoleAdmin}
	owner := &Identity{UserID: 2, Role: model.RoleUser}
	other := &Identity{UserID: 3, Role: model.RoleUser}
	owned := Resource{OwnerID: 2}

	cases := []struct {
		name   string
		id     *Identity
		action Action
		res    Resource
		want   bool
	}{
		{"anonymous denied", nil, ViewBooking, owned, false},
		{"admin creates event", admin, CreateEvent, Resource{}, true},
		{"user cannot create event", owner, CreateEvent, Resource{}, false},
		{"organizer updates own event", owner, UpdateEvent, owned, true},
		{"stranger cannot update event", other, UpdateEvent, owned, false},
		{"admin deletes any event", admin, DeleteEvent, owned, true},
		{"orphan event only for admin", owner, ManageTickets, Resource{}, false},
		{"owner views booking", owner, ViewBooking, owned, true},
		{"admin views booking", admin, ViewBooking, owned, true},
		{"stranger cannot view booking", other, ViewBooking, owned, false},
		{"owner cancels booking", owner, CancelBooking, owned, true},
		{"admin cancels booking", admin, CancelBooking, owned, true},
		{"owner pays booking", owner, PayBooking, owned, true},
		{"admin may settle payment", admin, PayBooking, owned, true},
		{"stranger cannot pay booking", other, PayBooking, owned, false},
		{"only admin books unpublished", owner, BookUnpublishedEvent, owned, false},
		{"admin books unpublished", admin, BookUnpublishedEvent, Resource{}, true},
		{"organizer views event bookings", owner, ViewEventBookings, owned, true},
		{"organizer checks guests in", owner, CheckInBooking, owned, true},
		{"stranger cannot check in", other, CheckInBooking, owned, false},
		{"admin manages users", admin, ManageUsers, Resource{}, true},
		{"user cannot manage users", owner, ManageUsers, owned, false},
		{"unknown action denied", admin, Action("nope"), owned, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Can(tc.id, tc.action, tc.res))
		})
	}
}

func TestResources(t *testing.T) {
	org := uint64(9)
	assert.Equal(t, Resource{OwnerID: 9}, EventResource(model.Event{OrganizerID: &org}))
	assert.Equal(t, Resource{}, EventResource(model.Event{}))
	assert.Equal(t, Resource{OwnerID: 4}, BookingResource(model.Booking{UserID: 4}))
}
