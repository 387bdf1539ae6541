package catalog

import (
	"context"
	"errors"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

// Protected fails fast through a circuit breaker while the wrapped lookup
// keeps failing. Missing products do not count as failures.
type Protected struct {
	Next    Lookup
	Breaker *resilience.Breaker
}

// NewProtected wires b to treat ErrProductNotFound as a healthy answer.
func NewProtected(next Lookup, b *resilience.Breaker) Protected {
	b.IsFailure = func(err error) bool { return !errors.Is(err, ErrProductNotFound) }
	return Protected{Next: next, Breaker: b}
}

// GetProduct implements Lookup.
func (p Protected) GetProduct(ctx context.Context, id pricing.ProductID) (pricing.Product, error) {
	if p.Breaker == nil {
		return p.Next.GetProduct(ctx, id)
	}
	var out pricing.Product
	err := p.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = p.Next.GetProduct(ctx, id)
		return err
	})
	return out, err
}
