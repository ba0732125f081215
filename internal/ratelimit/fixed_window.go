// Package ratelimit provides a Redis-backed fixed-window request limiter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"siashare-go/internal/share"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter limits requests per key in a fixed time window. The
// counters live in Redis so every server process shares the same quota.
type FixedWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	clock  share.Clock
}

// NewFixedWindowLimiter creates a limiter allowing limit requests per key per window.
func NewFixedWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration, clock share.Clock) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "siashare"
	}
	return &FixedWindowLimiter{
		client: client,
		prefix: prefix + ":ratelimit",
		limit:  limit,
		window: window,
		clock:  clock,
	}, nil
}

// Allow counts one request for key and reports whether it is within quota.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.clock.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	count, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false, fmt.Errorf("counting request: %w", err)
	}
	return count <= int64(l.limit), nil
}
