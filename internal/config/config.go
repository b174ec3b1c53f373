// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config defines the server-side environment variables.
type Config struct {
	MongoURI       string `env:"MONGODB_URI,required=true"`
	Database       string `env:"MONGODB_DATABASE,default=classboard"`
	Port           string `env:"PORT,default=4000"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	TokenTTLHours  int    `env:"TOKEN_TTL_HOURS,default=24"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`
	RateLimitRPM   int    `env:"RATE_LIMIT_RPM,default=10"`
}

// Load reads a .env file when present and unmarshals the environment.
func Load() (*Config, error) {
	// Best effort: a missing .env file is not an error, real deployments
	// set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return &cfg, nil
}

// TokenTTL returns the configured JWT validity period.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// Origins returns the allowed CORS/WebSocket origins as a slice.
// A single "*" entry allows any origin.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
