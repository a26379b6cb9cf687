package config // package config loads application configuration from environment variables

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the core runtime configuration.  Each field maps to an
// environment variable through its envconfig tag; fields marked required
// abort start-up when missing.
type Config struct {
	Env            string   `envconfig:"APP_ENV" default:"dev"`               // application environment (dev, test, prod)
	Port           string   `envconfig:"APP_PORT" default:"8080"`             // HTTP port to listen on
	DBUser         string   `envconfig:"DB_USER" required:"true"`             // database username
	DBPass         string   `envconfig:"DB_PASS"`                             // database password (optional)
	DBHost         string   `envconfig:"DB_HOST" required:"true"`             // database host address
	DBPort         string   `envconfig:"DB_PORT" default:"3306"`              // database port number
	DBName         string   `envconfig:"DB_NAME" required:"true"`             // database name
	AutoMigrate    bool     `envconfig:"DB_AUTO_MIGRATE" default:"false"`     // apply the embedded schema on start-up
	JWTSecret      string   `envconfig:"JWT_SECRET" required:"true"`          // secret used to sign JWTs
	AccessTTLMin   int      `envconfig:"ACCESS_TOKEN_TTL_MIN" default:"60"`   // access token lifetime in minutes
	RefreshTTLDays int      `envconfig:"REFRESH_TOKEN_TTL_DAYS" default:"7"`  // refresh token lifetime in days
	ResetTTLMin    int      `envconfig:"RESET_TOKEN_TTL_MIN" default:"60"`    // password reset token lifetime in minutes
	BcryptCost     int      `envconfig:"BCRYPT_COST" default:"10"`            // bcrypt cost for password hashing
	CORSOrigins    []string `envconfig:"CORS_ORIGINS" default:"*"`            // allowed CORS origins
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`            // zerolog level name
	BookingLogDir  string   `envconfig:"BOOKING_LOG_DIR" default:"logs"`      // directory of the booking audit log
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// Load reads the configuration from the environment.  Missing required
// variables are fatal.
func Load() Config {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	return c
}
