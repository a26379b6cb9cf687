package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventflow/eventflow-api/internal/domain"
	"github.com/eventflow/eventflow-api/internal/middleware"
	"github.com/eventflow/eventflow-api/internal/payment"
	"github.com/eventflow/eventflow-api/internal/queue"
	"github.com/eventflow/eventflow-api/internal/repository"
	"github.com/eventflow/eventflow-api/internal/response"
	"github.com/eventflow/eventflow-api/internal/service"
	"github.com/eventflow/eventflow-api/internal/utils"
)

const testSecret = "handler-test-secret"

func q(s string) string { return regexp.QuoteMeta(s) }

type stubGateway struct{}

func (stubGateway) Name() string { return "stub" }
func (stubGateway) CreateIntent(context.Context, payment.IntentRequest) (payment.Intent, error) {
	return payment.Intent{}, errors.New("not used")
}
func (stubGateway) VerifyIntent(context.Context, string) (payment.Verification, error) {
	return payment.Verification{}, errors.New("not used")
}
func (stubGateway) Refund(context.Context, string, decimal.Decimal) error { return nil }
func (stubGateway) CancelIntent(context.Context, string) error { return nil }

type testServer struct {
	e    *echo.Echo
	mock sqlmock.Sqlmock
}

// newTestServer mounts the handlers on a bare echo instance backed by
// sqlmock.  Routes mirror the production paths.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, m.ExpectationsWereMet())
		db.Close()
	})

	users, tokens, resets := repository.NewUserRepo(db), repository.NewTokenRepo(db), repository.NewResetRepo(db)
	events, tickets := repository.NewEventRepo(db), repository.NewTicketRepo(db)
	bookings, payments := repository.NewBookingRepo(db), repository.NewPaymentRepo(db)
	pub := queue.NopPublisher{}

	accounts := service.NewAccountService(users, tokens, resets, pub, service.AccountOptions{
		JWTSecret: testSecret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost,
	})
	auth := NewAuthHandler(accounts)
	admin := NewUserHandler(accounts)
	ev := NewEventHandler(service.NewCatalogService(events, tickets, func(context.Context) error { return nil }))
	bk := NewBookingHandler(service.NewBookingService(events, tickets, bookings, payments, stubGateway{}, pub, service.BookingOptions{}))

	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler
	jwt := middleware.JWTAuth(testSecret)

	e.POST("/api/auth/register", auth.Register)
	e.POST("/api/auth/forgot-password", auth.ForgotPassword)
	e.GET("/api/events", ev.List, middleware.OptionalAuth(testSecret))
	e.POST("/api/bookings", bk.Create, jwt)
	e.GET("/api/bookings/:id", bk.Get, jwt)
	e.POST("/api/bookings/:id/payment-intent", bk.PaymentIntent, jwt)
	e.GET("/api/bookings/reference/:reference", bk.ByReference, jwt)
	e.GET("/api/users", admin.List, jwt)
	e.DELETE("/api/users/:id", admin.Deactivate, jwt)
	return &testServer{e: e, mock: m}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) (int, response.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func adminToken(t *testing.T) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, 1, "root@example.com", "admin", 15)
	require.NoError(t, err)
	return tok.Token
}

func userToken(t *testing.T, id uint64) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, id, "ann@example.com", "user", 15)
	require.NoError(t, err)
	return tok.Token
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", domain.Validation("email", "Please provide a valid email"), http.StatusBadRequest, "Please provide a valid email"},
		{"unauthorized", domain.Unauthorized("Invalid email or password"), http.StatusUnauthorized, "Invalid email or password"},
		{"forbidden", domain.Forbidden("nope"), http.StatusForbidden, "nope"},
		{"not found", domain.NotFound("event", "Event not found"), http.StatusNotFound, "Event not found"},
		{"conflict", domain.Conflict("user", "User already exists with this email"), http.StatusConflict, "User already exists with this email"},
		{"business", domain.Business("capacity", "Event is at full capacity"), http.StatusBadRequest, "Event is at full capacity"},
		{"upstream", domain.Upstream("stripe", "Payment processor unavailable", errors.New("dial")), http.StatusBadGateway, "Payment processor unavailable"},
		{"wrapped", fmt.Errorf("create: %w", domain.Forbidden("wrapped")), http.StatusForbidden, "wrapped"},
		{"echo", echo.NewHTTPError(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)},
		{"timeout", fmt.Errorf("query: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "Request timed out"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, respondError(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)
			var env response.Envelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Equal(t, tc.msg, env.Message)
		})
	}
}

func TestValidatorMessages(t *testing.T) {
	v := NewValidator()
	price := decimal.NewFromInt(-1)

	err := v.Validate(&registerReq{Name: "Ann", Email: "not-an-email", Password: "secret1"})
	assert.Equal(t, "email: Please provide a valid email", err.Error())

	err = v.Validate(&registerReq{Name: "   ", Email: "ann@example.com", Password: "secret1"})
	assert.Equal(t, "name: name is required", err.Error())

	err = v.Validate(&registerReq{Name: "Ann", Email: "ann@example.com", Password: "abc"})
	assert.Equal(t, "password: password must be at least 6 characters", err.Error())

	name := "VIP"
	err = v.Validate(&ticketReq{Name: &name, Price: &price, Quantity: ptrInt(10)})
	require.Error(t, err)
	assert.Equal(t, "price: price must be at least 0", err.Error())

	assert.NoError(t, v.Validate(&loginReq{Email: "ann@example.com", Password: "x"}))
}

func ptrInt(n int) *int { return &n }

func TestRegisterRejectsInvalidBody(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/auth/register", `{"name":"Ann","email":"bad","password":"secret1"}`, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Please provide a valid email", env.Message)

	code, env = s.do(t, http.MethodPost, "/api/auth/register", `{"name":`, "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", env.Message)
}

func TestForgotPasswordAnswersTheSame(t *testing.T) {
	s := newTestServer(t)

	s.mock.ExpectExec(q("DELETE FROM password_resets WHERE expires_at")).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnError(sql.ErrNoRows)
	code1, env1 := s.do(t, http.MethodPost, "/api/auth/forgot-password", `{"email":"nobody@example.com"}`, "")

	s.mock.ExpectExec(q("DELETE FROM password_resets WHERE expires_at")).WillReturnError(errors.New("db down"))
	s.mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnError(errors.New("db down"))
	code2, env2 := s.do(t, http.MethodPost, "/api/auth/forgot-password", `{"email":"ann@example.com"}`, "")

	assert.Equal(t, http.StatusOK, code1)
	assert.Equal(t, code1, code2)
	assert.Equal(t, env1, env2)
	assert.Equal(t, forgotPasswordMessage, env1.Message)
}

func TestListEventsPaginates(t *testing.T) {
	s := newTestServer(t)
	cols := []string{"id", "title", "description", "short_description", "category", "venue", "address", "city",
		"country", "start_date", "end_date", "image_url", "thumbnail_url", "max_attendees", "current_attendees",
		"price", "is_free", "is_featured", "is_published", "organizer_id", "created_at", "updated_at", "name"}

	s.mock.ExpectQuery(q("SELECT COUNT(*) FROM events e WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
	s.mock.ExpectQuery(q("ORDER BY e.start_date ASC, e.id ASC LIMIT ? OFFSET ?")).
		WillReturnRows(sqlmock.NewRows(cols))

	code, env := s.do(t, http.MethodGet, "/api/events?page=2&limit=10", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, response.Pagination{Page: 2, Limit: 10, Total: 25, Pages: 3}, *env.Pagination)
}

func TestListEventsHugePageIsCapped(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectQuery(q("SELECT COUNT(*) FROM events e WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	s.mock.ExpectQuery(q("LIMIT ? OFFSET ?")).
		WithArgs(10, (repository.MaxPage-1)*10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	code, env := s.do(t, http.MethodGet, "/api/events?page=9223372036854775807", "", "")
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, repository.MaxPage, env.Pagination.Page)
}

func TestListEventsRejectsBadFilter(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/events?is_featured=maybe", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "is_featured must be true or false", env.Message)
}

func TestCreateBookingRequiresFields(t *testing.T) {
	s := newTestServer(t)
	tok := userToken(t, 7)

	code, env := s.do(t, http.MethodPost, "/api/bookings", `{"event_id":2}`, tok)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ticket_id is required", env.Message)

	code, env = s.do(t, http.MethodPost, "/api/bookings", `{"event_id":2,"ticket_id":3,"quantity":101}`, tok)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
}

func TestBookingRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/bookings/5", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Not authorized, invalid or missing token", env.Message)
}

func TestGetBookingInvalidID(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/bookings/abc", "", userToken(t, 7))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid id", env.Message)
}

func TestPaymentIntentRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/api/bookings/5/payment-intent", `{"payment_token":`, userToken(t, 7))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request body", env.Message)
}

func TestGetBookingNotFound(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectQuery(q("WHERE b.id = ?")).WithArgs(uint64(99)).WillReturnError(sql.ErrNoRows)

	code, env := s.do(t, http.MethodGet, "/api/bookings/99", "", userToken(t, 7))
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestBookingByReferenceNotFound(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectQuery(q("WHERE b.booking_reference = ?")).WithArgs("BK-0A1B2C3D-000001").WillReturnError(sql.ErrNoRows)

	code, env := s.do(t, http.MethodGet, "/api/bookings/reference/BK-0A1B2C3D-000001", "", userToken(t, 7))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Booking not found", env.Message)
}

func TestListUsersIsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/users", "", userToken(t, 7))
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	s.mock.ExpectQuery(q("SELECT COUNT(*) FROM users")).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	s.mock.ExpectQuery(q("FROM users ORDER BY id ASC")).WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	code, env = s.do(t, http.MethodGet, "/api/users", "", adminToken(t))
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 0, env.Pagination.Total)
}

func TestDeactivateUser(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectExec(q("UPDATE users SET is_active=FALSE")).WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(q("UPDATE refresh_tokens SET revoked_at")).WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	code, env := s.do(t, http.MethodDelete, "/api/users/7", "", adminToken(t))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "User deactivated successfully", env.Message)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Not Found", env.Message)
}

func TestHealthChecks(t *testing.T) {
	db, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	h := NewHealthHandler(db, nil)
	e := echo.New()

	rec := httptest.NewRecorder()
	require.NoError(t, h.Live(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.ExpectPing()
	rec = httptest.NewRecorder()
	require.NoError(t, h.Ready(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)

	m.ExpectPing().WillReturnError(errors.New("gone"))
	rec = httptest.NewRecorder()
	require.NoError(t, h.Ready(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unavailable"`)
	assert.NoError(t, m.ExpectationsWereMet())
}
