package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed window Guard built on ulule/limiter.
type Fixed struct {
	L *limiter.Limiter
}

// NewMemoryFixed returns a process-local Guard. rate uses the limiter
// format, e.g. "10-M" for ten attempts a minute.
func NewMemoryFixed(rate string) (Fixed, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Fixed{}, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	return Fixed{L: limiter.New(memory.NewStore(), r)}, nil
}

// NewRedisFixed returns a Guard whose counters are shared through Redis.
func NewRedisFixed(client *redis.Client, prefix, rate string) (Fixed, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return Fixed{}, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return Fixed{}, fmt.Errorf("ratelimit: redis store: %w", err)
	}
	return Fixed{L: limiter.New(store, r)}, nil
}

// Allow implements Guard.
func (f Fixed) Allow(ctx context.Context, key string) (bool, error) {
	if f.L == nil {
		return true, nil
	}
	lc, err := f.L.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return !lc.Reached, nil
}
