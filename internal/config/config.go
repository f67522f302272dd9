// Package config loads runtime settings from the environment and applies
// the defaults and sanitization rules of the echo chamber server.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	defaultAddr            = ":3000"
	defaultSendBufferSize  = 256
	defaultRatePerSecond   = 100
	defaultRateBurst       = 200
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the server configuration.
type Config struct {
	Addr           string `env:"SERVER_ADDR" default:":3000"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS" default:"*"`
	MaxMessageSize int64  `env:"MAX_MESSAGE_SIZE" default:"0"` // 0 = unlimited
	SendBufferSize int    `env:"SEND_BUFFER_SIZE" default:"256"`

	RateLimitEnabled   bool    `env:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"100"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"200"`

	IDStrategy      string        `env:"ID_STRATEGY" default:"counter"`
	Announce        bool          `env:"ANNOUNCE" default:"true"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// RateLimitConfig defines the per-connection inbound message limit.
type RateLimitConfig struct {
	Enabled   bool
	PerSecond float64
	Burst     int
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Addr:               defaultAddr,
		AllowedOrigins:     "*",
		SendBufferSize:     defaultSendBufferSize,
		RateLimitEnabled:   true,
		RateLimitPerSecond: defaultRatePerSecond,
		RateLimitBurst:     defaultRateBurst,
		IDStrategy:         "counter",
		Announce:           true,
		ShutdownTimeout:    defaultShutdownTimeout,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads an optional .env file and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Sanitize replaces empty or out-of-range values with defaults.
func (c *Config) Sanitize() {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.MaxMessageSize < 0 {
		c.MaxMessageSize = 0
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = defaultRatePerSecond
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = defaultRateBurst
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	c.IDStrategy = strings.ToLower(strings.TrimSpace(c.IDStrategy))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate rejects settings that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.IDStrategy {
	case "counter", "uuid":
	default:
		return fmt.Errorf("ID_STRATEGY must be \"counter\" or \"uuid\", got %q", c.IDStrategy)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

// Origins splits AllowedOrigins into trimmed, non-empty entries.
func (c *Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// RateLimit returns the rate limiting section of the configuration.
func (c *Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{
		Enabled:   c.RateLimitEnabled,
		PerSecond: c.RateLimitPerSecond,
		Burst:     c.RateLimitBurst,
	}
}
