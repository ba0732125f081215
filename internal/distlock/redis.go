// Package distlock implements share.Locker over Redis.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"siashare-go/internal/share"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker grants expiring single-holder locks with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	prefix string
	logger share.Logger
}

func NewRedisLocker(client *redis.Client, prefix string, logger share.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("locker requires a redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "siashare"
	}
	return &RedisLocker{client: client, prefix: prefix + ":lock:", logger: logger}, nil
}

// TryLock takes key for ttl if nobody holds it. The returned unlock releases
// the lock only while this holder still owns it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("releasing lock failed, it will expire", "key", key, "error", err)
		}
	}
	return unlock, true, nil
}

// Compile-time check that RedisLocker implements share.Locker interface
var _ share.Locker = (*RedisLocker)(nil)
