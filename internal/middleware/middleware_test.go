package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflow/eventflow-api/internal/config"
	"github.com/eventflow/eventflow-api/internal/utils"
)

const testSecret = "middleware-test-secret"

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, uid, "someone@example.com", role, 5)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", func(c echo.Context) error {
		id := IdentityFrom(c)
		require.NotNil(t, id)
		return c.String(http.StatusOK, id.Role)
	}, JWTAuth(testSecret))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", bearer(t, 10, "organizer"), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := serve(e, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				assert.JSONEq(t, `{"success":false,"message":"Not authorized, invalid or missing token"}`, rec.Body.String())
			} else {
				assert.Equal(t, "organizer", rec.Body.String())
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	e := echo.New()
	e.GET("/events", func(c echo.Context) error {
		if id := IdentityFrom(c); id != nil {
			return c.String(http.StatusOK, currentUserID(c))
		}
		return c.String(http.StatusOK, "anonymous")
	}, OptionalAuth(testSecret))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, "anonymous", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer broken")
	rec = serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 42, "user"))
	rec = serve(e, req)
	assert.Equal(t, "42", rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	e.POST("/events", ok, JWTAuth(testSecret), RequireRole("organizer", "admin"))

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 1, "user"))
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set(echo.HeaderAuthorization, bearer(t, 1, "admin"))
	assert.Equal(t, http.StatusNoContent, serve(e, req).Code)
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, c.Get("request_id").(string)) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(echo.HeaderXRequestID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	assert.Equal(t, "abc-123", serve(e, req).Header().Get(echo.HeaderXRequestID))
}

func rateConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: 2 * time.Second,
		TTL:            time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "test:rl",
	}
}

func TestTokenBucket(t *testing.T) {
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = time.Now }()

	rdb, mock := redismock.NewClientMock()
	cfg := rateConfig()
	key := "test:rl:ip:192.0.2.1:route:POST /api/auth/login"
	args := []interface{}{fixed.UnixMilli(), cfg.Capacity, cfg.RefillTokens, int64(2000), int64(60)}

	mock.ExpectEvalSha(tokenBucketScript.Hash(), []string{key}, args...).
		SetVal([]interface{}{int64(1), int64(1), int64(0)})
	mock.ExpectEvalSha(tokenBucketScript.Hash(), []string{key}, args...).
		SetVal([]interface{}{int64(0), int64(0), int64(1500)})

	e := echo.New()
	e.POST("/api/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewTokenBucket("auth", cfg, rdb))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		return req
	}

	rec := serve(e, newReq())
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(e, newReq())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenBucketFailsOpen(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(false)

	e := echo.New()
	e.GET("/api/events", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewTokenBucket("api", rateConfig(), rdb))

	// No expectation is registered, so the script call errors.
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestTokenBucketDisabled(t *testing.T) {
	cfg := rateConfig()
	cfg.Enabled = false
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, NewTokenBucket("api", cfg, nil))
	assert.Equal(t, http.StatusNoContent, serve(e, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestBuildRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/events/7", nil)
	req.RemoteAddr = "198.51.100.4:1000"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/events/:id")
	c.Set(ctxUserID, "9")

	cfg := rateConfig()
	for strategy, want := range map[string]string{
		"ip":         "test:rl:ip:198.51.100.4",
		"user":       "test:rl:user:9",
		"ip_user":    "test:rl:ip:198.51.100.4:user:9",
		"user_route": "test:rl:user:9:route:GET /api/events/:id",
		"":           "test:rl:ip:198.51.100.4:user:9:route:GET /api/events/:id",
	} {
		cfg.KeyStrategy = strategy
		assert.Equal(t, want, buildRateKey(cfg, c), strategy)
	}
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		TTL:         30 * time.Second,
		KeyStrategy: "route_query",
		Prefix:      "test:cache",
	}
}

func cacheKeyFor(cfg config.CacheConfig, path, route string) string {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
	c.SetPath(route)
	return cacheKeyFrom(cfg, c)
}

func TestRedisCacheMissThenHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := cacheConfig()
	key := cacheKeyFor(cfg, "/api/events?page=2", "/api/events")

	payload, err := encodePayload(http.StatusOK,
		http.Header{echo.HeaderContentType: {echo.MIMETextPlainCharsetUTF8}}, []byte("catalog"))
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetEx(key, payload, cfg.TTL).SetVal("OK")
	mock.ExpectGet(key).SetVal(string(payload))

	calls := 0
	e := echo.New()
	e.GET("/api/events", func(c echo.Context) error {
		calls++
		return c.String(http.StatusOK, "catalog")
	}, NewRedisCache(cfg, rdb))

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/events?page=2", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "catalog", rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/events?page=2", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "catalog", rec.Body.String())
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheSkipsAuthenticatedAndErrors(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cfg := cacheConfig()
	key := cacheKeyFor(cfg, "/api/events/5", "/api/events/:id")
	mock.ExpectGet(key).RedisNil()

	e := echo.New()
	e.GET("/api/events/:id", func(c echo.Context) error {
		return c.String(http.StatusNotFound, "missing")
	}, NewRedisCache(cfg, rdb))

	req := httptest.NewRequest(http.MethodGet, "/api/events/5", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer x")
	rec := serve(e, req)
	assert.Empty(t, rec.Header().Get("X-Cache"))

	// A 404 is not stored, so no SetEx is expected.
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/events/5", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKeyDistinguishesPaths(t *testing.T) {
	cfg := cacheConfig()
	a := cacheKeyFor(cfg, "/api/events/1", "/api/events/:id")
	b := cacheKeyFor(cfg, "/api/events/2", "/api/events/:id")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "test:cache:")
}

func TestPayloadRoundTrip(t *testing.T) {
	bs, err := encodePayload(201, http.Header{"X-A": {"1"}}, []byte("body"))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, 201, status)
	assert.Equal(t, "1", hdr.Get("X-A"))
	assert.Equal(t, "body", string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestPurgeCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.ExpectScan(0, "test:cache:*", 100).SetVal([]string{"test:cache:a", "test:cache:b"}, 7)
	mock.ExpectDel("test:cache:a", "test:cache:b").SetVal(2)
	mock.ExpectScan(7, "test:cache:*", 100).SetVal(nil, 0)

	require.NoError(t, PurgeCache(context.Background(), rdb, "test:cache"))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, PurgeCache(context.Background(), nil, "test:cache"))
}
