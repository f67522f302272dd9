// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the hub from abuse.
package server

import (
	"golang.org/x/time/rate"

	"github.com/Tyrowin/echochamber/internal/config"
)

// rateLimiter wraps a token bucket. A nil *rateLimiter allows everything.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	if !cfg.Enabled {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	perSecond := cfg.PerSecond
	if perSecond <= 0 {
		perSecond = float64(burst)
	}

	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (rl *rateLimiter) allow() bool {
	if rl == nil {
		return true
	}
	return rl.limiter.Allow()
}
