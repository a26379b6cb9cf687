package router

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/eventflow/eventflow-api/internal/handler"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	Register(e, Deps{
		JWTSecret: "router-test-secret",
		Auth:      &handler.AuthHandler{},
		Events:    &handler.EventHandler{},
		Bookings:  &handler.BookingHandler{},
		Users:     &handler.UserHandler{},
		Health:    handler.NewHealthHandler(nil, nil),
	})
	return e
}

func TestRegisterMountsEveryRoute(t *testing.T) {
	e := newEcho()
	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /healthz", "GET /readyz", "GET /metrics",
		"POST /api/auth/register", "POST /api/auth/login", "POST /api/auth/refresh",
		"POST /api/auth/logout", "GET /api/auth/profile", "PUT /api/auth/profile",
		"PUT /api/auth/change-password", "POST /api/auth/forgot-password", "POST /api/auth/reset-password",
		"GET /api/events", "GET /api/events/featured", "GET /api/events/upcoming", "GET /api/events/categories",
		"GET /api/events/organizer/:organizerId", "GET /api/events/:id", "POST /api/events",
		"PUT /api/events/:id", "DELETE /api/events/:id",
		"GET /api/events/:id/tickets", "POST /api/events/:id/tickets",
		"PUT /api/tickets/:id", "DELETE /api/tickets/:id",
		"POST /api/bookings", "GET /api/bookings/my-bookings", "GET /api/bookings/stats",
		"GET /api/bookings/event/:eventId", "GET /api/bookings/:id", "POST /api/bookings/:id/cancel",
		"POST /api/bookings/:id/payment-intent", "POST /api/bookings/:id/confirm-payment",
		"GET /api/bookings/reference/:reference", "POST /api/bookings/:id/check-in",
		"GET /api/users", "DELETE /api/users/:id",
	}
	var missing []string
	for _, w := range want {
		if !got[w] {
			missing = append(missing, w)
		}
	}
	sort.Strings(missing)
	assert.Empty(t, missing)
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	e := newEcho()
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/profile"},
		{http.MethodPost, "/api/events"},
		{http.MethodPut, "/api/tickets/3"},
		{http.MethodGet, "/api/bookings/my-bookings"},
		{http.MethodPost, "/api/bookings/5/cancel"},
		{http.MethodPost, "/api/bookings/5/check-in"},
		{http.MethodGet, "/api/users"},
		{http.MethodDelete, "/api/users/3"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
		assert.Contains(t, rec.Body.String(), `"success":false`, tc.path)
	}
}

func TestHealthzIsPublic(t *testing.T) {
	e := newEcho()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"ok"}`, rec.Body.String())
}
