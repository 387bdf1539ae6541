package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete drops key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// Cached serves products from Redis and falls back to the wrapped lookup.
// Cache failures are logged and never fail a lookup.
type Cached struct {
	Next   Lookup
	Cache  *Cache
	Logger zerolog.Logger
}

// GetProduct implements Lookup.
func (c Cached) GetProduct(ctx context.Context, id pricing.ProductID) (pricing.Product, error) {
	if c.Next == nil {
		return pricing.Product{}, errors.New("catalog: lookup not configured")
	}
	key := ProductKey(id)
	var cached pricing.Product
	ok, err := c.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache read failed")
	}
	if ok {
		return cached, nil
	}

	p, err := c.Next.GetProduct(ctx, id)
	if err != nil {
		return pricing.Product{}, err
	}
	if err := c.Cache.SetJSON(ctx, key, p); err != nil {
		c.Logger.Warn().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
	return p, nil
}

// Invalidate removes a product from the cache, e.g. after a stock change.
func (c Cached) Invalidate(ctx context.Context, id pricing.ProductID) error {
	if err := c.Cache.Delete(ctx, ProductKey(id)); err != nil {
		return fmt.Errorf("catalog: invalidate %d: %w", id, err)
	}
	return nil
}

// ProductKey is the cache key of a product.
func ProductKey(id pricing.ProductID) string {
	return "catalog:product:" + strconv.FormatInt(int64(id), 10)
}
