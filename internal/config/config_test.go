package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "eventflow")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	c := Load()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "3306", c.DBPort)
	assert.Equal(t, 60, c.AccessTTLMin)
	assert.Equal(t, 7, c.RefreshTTLDays)
	assert.Equal(t, 10, c.BcryptCost)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
	assert.True(t, c.IsDev())
}

func TestIsDev(t *testing.T) {
	assert.True(t, Config{Env: "Local"}.IsDev())
	assert.False(t, Config{Env: "prod"}.IsDev())
}

func TestRateLimitConfigNormalizes(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	c := LoadRateLimitConfig()
	assert.False(t, c.Enabled)
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 10*time.Second, c.TTL)

	auth := LoadAuthRateLimitConfig()
	assert.False(t, auth.Enabled)
	assert.Equal(t, "ip_route", auth.KeyStrategy)
	assert.Equal(t, "eventflow:rl:auth", auth.Prefix)
	assert.Equal(t, 10, auth.Capacity)
}

func TestCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_TTL", "bogus")

	c := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, c.Methods)
	assert.Equal(t, 30*time.Second, c.TTL)
	assert.Equal(t, "eventflow:cache", c.Prefix)
}

func TestBrokerConfigConsumerFollowsURL(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("NOTIFICATION_CONSUMER_ENABLED", "")
	assert.False(t, LoadBrokerConfig().ConsumerEnabled)

	t.Setenv("AMQP_URL", "amqp://guest:guest@mq:5672/")
	b := LoadBrokerConfig()
	assert.Equal(t, "amqp://guest:guest@mq:5672/", b.URL)
	assert.True(t, b.ConsumerEnabled)
	assert.Equal(t, "eventflow.events", b.Exchange)
}

func TestRedisHostPortOverridesAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")
	assert.Equal(t, "cache:6379", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TLS", "1")
	c := LoadRedisConfig()
	assert.Equal(t, "redis:6380", c.Addr)
	assert.True(t, c.TLS)
}
