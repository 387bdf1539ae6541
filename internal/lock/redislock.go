package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Redis provides a Redis-backed distributed lock shared by every process
// pointing at the same server.
type Redis struct {
	R            *redis.Client
	TTL          time.Duration
	RetryBackoff time.Duration
	Prefix       string
}

var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// WithLock executes fn while holding the lock for key. The lock is released
// even if fn returns an error. When the lock cannot be acquired before the
// context is cancelled the context error is returned.
func (l Redis) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	key = l.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Redis) release(ctx context.Context, key, token string) {
	if err := releaseScript.Run(ctx, l.R, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
