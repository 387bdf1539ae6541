package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/resilience"
)

type flakyLookup struct {
	calls int
	err   error
}

func (f *flakyLookup) GetProduct(context.Context, pricing.ProductID) (pricing.Product, error) {
	f.calls++
	return pricing.Product{}, f.err
}

func TestProtectedOpensOnBackendFailures(t *testing.T) {
	backend := &flakyLookup{err: errors.New("connection refused")}
	p := NewProtected(backend, &resilience.Breaker{Target: "products", MinRequests: 2, OpenFor: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.GetProduct(ctx, 1)
		require.ErrorContains(t, err, "connection refused")
	}
	_, err := p.GetProduct(ctx, 1)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, 2, backend.calls)
}

func TestProtectedTreatsMissingProductsAsHealthy(t *testing.T) {
	p := NewProtected(NewMemory(), &resilience.Breaker{MinRequests: 1})
	for i := 0; i < 3; i++ {
		_, err := p.GetProduct(context.Background(), 404)
		require.ErrorIs(t, err, ErrProductNotFound)
	}
	require.Equal(t, resilience.Closed, p.Breaker.State())
}
