package ratelimit

import (
	"context"
	"errors"
	"fmt"
)

// Standard errors.
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrLimiterClosed     = errors.New("limiter is closed")
)

// Limiter is a token-bucket request limiter.
type Limiter interface {
	// Allow reports whether one request is admitted for the key.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases limiter resources.
	Close() error
}

// Config configures a limiter. RPS is the steady-state refill rate and Burst
// the bucket capacity.
type Config struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`

	// Backend selects the storage (memory, redis).
	Backend string `koanf:"backend"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// DefaultConfig returns a permissive in-memory configuration.
func DefaultConfig() *Config {
	return &Config{
		RPS:     100,
		Burst:   10,
		Backend: "memory",
	}
}

// New creates a limiter for the configured backend.
func New(cfg *Config) (Limiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryLimiter(cfg), nil
	case "redis":
		return NewRedisLimiter(cfg)
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}
}
