package ratelimit

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects a Redis backed Guard. A positive Max picks the sliding
// window, otherwise a non-empty Rate picks the fixed window.
type Options struct {
	Prefix string
	Rate   string
	Window time.Duration
	Max    int
}

// NewRedisGuard returns the Guard described by opts, or nil when opts
// disable throttling.
func NewRedisGuard(client *redis.Client, opts Options) (Guard, error) {
	switch {
	case opts.Max > 0:
		window := opts.Window
		if window <= 0 {
			window = time.Minute
		}
		return Sliding{Client: client, Prefix: opts.Prefix + ":", Window: window, Max: opts.Max}, nil
	case opts.Rate != "":
		return NewRedisFixed(client, opts.Prefix, opts.Rate)
	default:
		return nil, nil
	}
}
