package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig describes one token bucket.  The API uses two buckets: a
// general one for every route and a strict one for credential endpoints
// (login, register, password reset).
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables for the general bucket.
func LoadRateLimitConfig() RateLimitConfig {
	return normalizeRateLimit(RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "eventflow:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	})
}

// LoadAuthRateLimitConfig reads AUTH_RATE_LIMIT_* variables for the bucket
// guarding credential endpoints.  It is keyed by IP and route so that a
// single client cannot brute force logins.
func LoadAuthRateLimitConfig() RateLimitConfig {
	base := LoadRateLimitConfig()
	return normalizeRateLimit(RateLimitConfig{
		Enabled:        envBool("AUTH_RATE_LIMIT_ENABLED", base.Enabled),
		Capacity:       envInt("AUTH_RATE_LIMIT_CAPACITY", 10),
		RefillTokens:   1,
		RefillInterval: envDur("AUTH_RATE_LIMIT_REFILL_INTERVAL", 6*time.Second),
		TTL:            base.TTL,
		KeyStrategy:    "ip_route",
		Prefix:         base.Prefix + ":auth",
		Debug:          base.Debug,
	})
}

func normalizeRateLimit(def RateLimitConfig) RateLimitConfig {
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
