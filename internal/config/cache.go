package config

import (
	"strings"
	"time"
)

// CacheConfig controls the Redis response cache in front of the public event
// catalog.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool // upper-case HTTP methods eligible for caching
	TTL          time.Duration
	KeyStrategy  string // same names as the rate limiter, plus route_query
	Prefix       string // Redis key prefix; catalog writes purge prefix:*
	MaxBodyBytes int    // larger responses are served but not stored
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      methodSet(envStr("CACHE_METHODS", "GET")),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "eventflow:cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}

// methodSet parses a comma separated method list.
func methodSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, m := range strings.Split(s, ",") {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			set[m] = true
		}
	}
	return set
}
