package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard throttles attempts per key.
type Guard interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Sliding implements a sliding window rate limiter backed by Redis sorted sets.
type Sliding struct {
	Client *redis.Client
	Prefix string
	Window time.Duration
	Max    int
}

// Allow registers an attempt for key and reports whether it is within the limit.
func (l Sliding) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := l.allow(ctx, key, time.Now())
	return allowed, err
}

func (l Sliding) allow(ctx context.Context, key string, now time.Time) (allowed bool, remaining int, err error) {
	if l.Client == nil || l.Max <= 0 || l.Window <= 0 {
		return true, l.Max, nil
	}
	score := float64(now.UnixNano())
	cutoff := float64(now.Add(-l.Window).UnixNano())
	redisKey := l.Prefix + key
	member := fmt.Sprintf("%s:%s", key, uuid.NewString())

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: score, Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.Window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	current := int(countCmd.Val())
	remaining = l.Max - current
	if remaining < 0 {
		remaining = 0
	}
	return current <= l.Max, remaining, nil
}
