package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/eventflow/eventflow-api/internal/config"
	"github.com/eventflow/eventflow-api/internal/metrics"
	"github.com/eventflow/eventflow-api/internal/response"
)

// nowFunc is the limiter clock.  Tests replace it.
var nowFunc = time.Now

// tokenBucketScript refills and takes one token atomically.  It returns
// {allowed, tokens_left, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local per_refill = tonumber(ARGV[3])
local every_ms = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local h = redis.call('HMGET', key, 'tokens', 'refilled_at')
local tokens, refilled_at = tonumber(h[1]), tonumber(h[2])
if not tokens or not refilled_at then
  tokens, refilled_at = capacity, now
end

if every_ms > 0 then
  local n = math.floor(math.max(0, now - refilled_at) / every_ms)
  if n > 0 then
    tokens = math.min(capacity, tokens + n * per_refill)
    refilled_at = refilled_at + n * every_ms
  end
end

local ok, wait_ms = 0, 0
if tokens >= 1 then
  ok, tokens = 1, tokens - 1
else
  wait_ms = math.max(0, every_ms - (now - refilled_at))
end

redis.call('HSET', key, 'tokens', tokens, 'refilled_at', refilled_at)
redis.call('EXPIRE', key, ttl)
return { ok, tokens, wait_ms }
`)

// NewTokenBucket limits requests per key with a Redis token bucket.  name
// labels the limiter in metrics.  A disabled config or nil client yields a
// pass-through middleware, and Redis errors fail open.
func NewTokenBucket(name string, cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			args := []interface{}{
				nowFunc().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}

			vals, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
			if err != nil {
				log.Warn().Err(err).Str("limiter", name).Msg("rate limit check failed, allowing request")
				return next(c)
			}
			res, ok := vals.([]interface{})
			if !ok || len(res) != 3 {
				log.Warn().Str("limiter", name).Str("result", fmt.Sprintf("%#v", vals)).Msg("unexpected rate limit result")
				return next(c)
			}
			allowed, remaining, retryMs := toInt64(res[0]) == 1, toInt64(res[1]), toInt64(res[2])

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}

			if !allowed {
				wait := max(1, int(math.Ceil(float64(retryMs)/1000)))
				h.Set("Retry-After", strconv.Itoa(wait))
				metrics.RateLimited.WithLabelValues(name).Inc()
				log.Debug().Str("limiter", name).Str("key", key).Int64("retry_ms", retryMs).Msg("rate limited")
				return response.Fail(c, http.StatusTooManyRequests, "Too many requests, please try again later")
			}
			return next(c)
		}
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// toInt64 reads a Lua number reply.  go-redis returns int64 but proxies
// sometimes hand back strings.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

// rateKeyDims lists the dimensions each key strategy combines.  Unknown
// strategies use all three.
var rateKeyDims = map[string][]string{
	"ip":         {"ip"},
	"user":       {"user"},
	"route":      {"route"},
	"ip_user":    {"ip", "user"},
	"ip_route":   {"ip", "route"},
	"user_route": {"user", "route"},
}

// buildRateKey renders prefix:dim:value[:dim:value...].
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	dims, ok := rateKeyDims[strings.ToLower(cfg.KeyStrategy)]
	if !ok {
		dims = []string{"ip", "user", "route"}
	}
	parts := []string{cfg.Prefix}
	for _, d := range dims {
		parts = append(parts, d, rateKeyValue(c, d))
	}
	return strings.Join(parts, ":")
}

func rateKeyValue(c echo.Context, dim string) string {
	switch dim {
	case "ip":
		if ip := c.RealIP(); ip != "" {
			return ip
		}
		return "unknown"
	case "user":
		return currentUserID(c)
	default:
		return c.Request().Method + " " + c.Path()
	}
}

func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
