package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a token-bucket limiter backed by Redis, for deployments
// where several processes must share one budget.
type RedisLimiter struct {
	client *redis.Client
	config *Config
	script *redis.Script
}

// NewRedisLimiter creates a Redis-backed limiter and verifies connectivity.
func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	// Atomic token-bucket check and refill.
	script := redis.NewScript(`
		local key = KEYS[1]
		local rate = tonumber(ARGV[1])
		local burst = tonumber(ARGV[2])
		local now = tonumber(ARGV[3])

		local data = redis.call('HMGET', key, 'tokens', 'last')
		local tokens = tonumber(data[1]) or burst
		local last = tonumber(data[2]) or now

		tokens = math.min(burst, tokens + (now - last) / 1000 * rate)

		local allowed = 0
		if tokens >= 1 then
			tokens = tokens - 1
			allowed = 1
		end

		redis.call('HMSET', key, 'tokens', tokens, 'last', now)
		redis.call('EXPIRE', key, math.ceil(burst / rate) + 1)

		return allowed
	`)

	return &RedisLimiter{
		client: client,
		config: cfg,
		script: script,
	}, nil
}

// Allow admits one request when the shared bucket holds a token.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	now := time.Now().UnixMilli()

	result, err := l.script.Run(ctx, l.client, []string{redisKey},
		l.config.RPS, l.config.Burst, now).Int64()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}

	return result == 1, nil
}

// Close closes the underlying Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
