// Package ratelimit provides a Redis-backed fixed-window request limiter.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RedisLimiter counts requests per key in fixed windows. Counters live in
// Redis so every API instance shares them.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter connects to redisURL and allows limit requests per key in
// every window.
func NewRedisLimiter(redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLimiterWithClient(client, limit, window), nil
}

// NewRedisLimiterWithClient creates a limiter from an existing Redis client.
func NewRedisLimiterWithClient(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client: client,
		prefix: "ratelimit:",
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) key(scope string, windowStart int64) string {
	return l.prefix + scope + ":" + strconv.FormatInt(windowStart, 10)
}

// Allow counts one request for scope and reports whether it fits the window.
// A limit of zero or less disables limiting.
func (l *RedisLimiter) Allow(ctx context.Context, scope string) (Decision, error) {
	if l.limit <= 0 {
		return Decision{Allowed: true, Limit: l.limit}, nil
	}

	now := l.now()
	windowStart := now.Truncate(l.window)
	key := l.key(scope, windowStart.Unix())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window+time.Second)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("count request: %w", err)
	}

	count := int(incr.Val())
	decision := Decision{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: l.limit - count,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	if !decision.Allowed {
		decision.RetryAfter = windowStart.Add(l.window).Sub(now)
	}
	return decision, nil
}

// Close closes the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Ping checks if Redis is reachable.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
