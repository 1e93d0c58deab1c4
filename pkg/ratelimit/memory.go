package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is an in-process token-bucket limiter keyed by string.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  *Config
	closed  bool

	// now is swappable in tests.
	now func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(cfg *Config) *MemoryLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 100
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		config:  cfg,
		now:     time.Now,
	}
}

// Allow admits one request when the key's bucket holds a token.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false, ErrLimiterClosed
	}

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:    float64(l.config.Burst),
			lastCheck: now,
		}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastCheck)
	b.lastCheck = now
	b.tokens += elapsed.Seconds() * l.config.RPS
	if b.tokens > float64(l.config.Burst) {
		b.tokens = float64(l.config.Burst)
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}

	return false, nil
}

// Close marks the limiter closed; further Allow calls error.
func (l *MemoryLimiter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.buckets = nil
	return nil
}
