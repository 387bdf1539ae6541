package cartrule

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// consumeScript returns 1 when a usage was taken, 0 when the rule is
// exhausted and -1 when the customer reached the per-user limit.
var consumeScript = redis.NewScript(`
local remaining = tonumber(redis.call("GET", KEYS[1]) or "0")
if remaining <= 0 then
  return 0
end
local limit = tonumber(ARGV[2])
if limit > 0 and ARGV[1] ~= "" then
  local used = tonumber(redis.call("HGET", KEYS[2], ARGV[1]) or "0")
  if used >= limit then
    return -1
  end
end
redis.call("DECR", KEYS[1])
if ARGV[1] ~= "" then
  redis.call("HINCRBY", KEYS[2], ARGV[1], 1)
end
return 1
`)

var releaseScript = redis.NewScript(`
redis.call("INCR", KEYS[1])
if ARGV[1] ~= "" then
  local used = tonumber(redis.call("HGET", KEYS[2], ARGV[1]) or "0")
  if used > 0 then
    redis.call("HINCRBY", KEYS[2], ARGV[1], -1)
  end
end
return 1
`)

// RedisUsage keeps rule counters in Redis so several processes can share
// them. Consumption runs as a single Lua script.
type RedisUsage struct {
	R      *redis.Client
	Prefix string
}

func (u RedisUsage) remainingKey(id pricing.RuleID) string {
	return u.prefix() + strconv.FormatInt(int64(id), 10) + ":remaining"
}

func (u RedisUsage) usedKey(id pricing.RuleID) string {
	return u.prefix() + strconv.FormatInt(int64(id), 10) + ":used"
}

func (u RedisUsage) prefix() string {
	if u.Prefix == "" {
		return "cartrule:"
	}
	return u.Prefix
}

// Seed implements UsageCounter.
func (u RedisUsage) Seed(ctx context.Context, id pricing.RuleID, quantity int) error {
	if u.R == nil {
		return errors.New("cartrule: redis client not configured")
	}
	return u.R.SetNX(ctx, u.remainingKey(id), quantity, 0).Err()
}

// Consume implements UsageCounter.
func (u RedisUsage) Consume(ctx context.Context, id pricing.RuleID, customer string, perUser int) (bool, error) {
	if u.R == nil {
		return false, errors.New("cartrule: redis client not configured")
	}
	res, err := consumeScript.Run(ctx, u.R, []string{u.remainingKey(id), u.usedKey(id)}, customer, perUser).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Release implements UsageCounter.
func (u RedisUsage) Release(ctx context.Context, id pricing.RuleID, customer string) error {
	if u.R == nil {
		return errors.New("cartrule: redis client not configured")
	}
	return releaseScript.Run(ctx, u.R, []string{u.remainingKey(id), u.usedKey(id)}, customer).Err()
}

// Remaining implements UsageCounter.
func (u RedisUsage) Remaining(ctx context.Context, id pricing.RuleID) (int, error) {
	if u.R == nil {
		return 0, errors.New("cartrule: redis client not configured")
	}
	n, err := u.R.Get(ctx, u.remainingKey(id)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Usage implements UsageCounter.
func (u RedisUsage) Usage(ctx context.Context, id pricing.RuleID, customer string) (int, error) {
	if u.R == nil {
		return 0, errors.New("cartrule: redis client not configured")
	}
	n, err := u.R.HGet(ctx, u.usedKey(id), customer).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
