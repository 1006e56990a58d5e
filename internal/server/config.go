// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Tyrowin/vanishchat/internal/chat"
	"github.com/Tyrowin/vanishchat/internal/relay"
	"github.com/caarlos0/env/v11"
)

const (
	defaultPort           = "8080"
	defaultMaxMessageSize = 64 * 1024
	defaultRefillInterval = time.Second
	defaultShutdown       = 10 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A zero Burst disables the limiter.
type RateLimitConfig struct {
	Burst          int           `env:"BURST" envDefault:"0"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL" envDefault:"1s"`
}

// Config holds the server configuration settings including security controls
// and the room lifecycle timings.
type Config struct {
	Port            string          `env:"PORT" envDefault:"8080"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
	MaxMessageSize  int64           `env:"MAX_MESSAGE_SIZE" envDefault:"65536"`
	RateLimit       RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	DeleteGrace     time.Duration   `env:"DELETE_GRACE" envDefault:"1s"`
	SweepInterval   time.Duration   `env:"SWEEP_INTERVAL" envDefault:"30m"`
	IdleThreshold   time.Duration   `env:"IDLE_THRESHOLD" envDefault:"2h"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string          `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads the configuration from the process environment. Unset
// variables take their defaults; out-of-range values are sanitized.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg.Sanitize(), nil
}

// NewConfig returns a Config populated with default values for all settings,
// ignoring the process environment.
func NewConfig() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		// Defaults are static tags; failing here is a programming error.
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg.Sanitize()
}

// Sanitize replaces unusable values with defaults and trims the origin list.
func (c Config) Sanitize() Config {
	c.Port = strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if c.Port == "" {
		c.Port = defaultPort
	}

	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}

	if c.RateLimit.Burst < 0 {
		c.RateLimit.Burst = 0
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}

	if c.DeleteGrace <= 0 {
		c.DeleteGrace = relay.DefaultDeleteGrace
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = chat.DefaultSweepInterval
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = chat.DefaultIdleThreshold
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdown
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.AllowedOrigins = origins

	return c
}

// Addr is the listen address derived from Port.
func (c Config) Addr() string {
	return ":" + c.Port
}
