package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicketOnSale(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	assert.True(t, Ticket{}.OnSale(now))
	assert.True(t, Ticket{SaleStart: &before, SaleEnd: &after}.OnSale(now))
	assert.False(t, Ticket{SaleStart: &after}.OnSale(now))
	assert.False(t, Ticket{SaleEnd: &before}.OnSale(now))
}

func TestEventAvailableSpots(t *testing.T) {
	assert.Equal(t, 1, Event{MaxAttendees: 100, CurrentAttendees: 99}.AvailableSpots())
	assert.Equal(t, 0, Event{MaxAttendees: 10, CurrentAttendees: 10}.AvailableSpots())

	org := uint64(7)
	assert.True(t, Event{OrganizerID: &org}.OrganizedBy(7))
	assert.False(t, Event{}.OrganizedBy(7))
}

func TestBookingTerminal(t *testing.T) {
	assert.False(t, Booking{Status: BookingPending}.IsTerminal())
	assert.False(t, Booking{Status: BookingConfirmed}.IsTerminal())
	assert.True(t, Booking{Status: BookingCancelled}.IsTerminal())
	assert.True(t, Booking{Status: BookingRefunded}.IsTerminal())
}
