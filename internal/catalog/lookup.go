package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("product not found")

// Lookup resolves catalog products for cart lines and rule targets.
type Lookup interface {
	GetProduct(ctx context.Context, id pricing.ProductID) (pricing.Product, error)
}

// Memory is an in-process catalog, safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	products map[pricing.ProductID]pricing.Product
}

// NewMemory returns a catalog holding products.
func NewMemory(products ...pricing.Product) *Memory {
	m := &Memory{products: make(map[pricing.ProductID]pricing.Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

// Put inserts or replaces a product.
func (m *Memory) Put(p pricing.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// SetInStock flips the stock flag of an existing product.
func (m *Memory) SetInStock(id pricing.ProductID, inStock bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.InStock = inStock
	m.products[id] = p
	return nil
}

// GetProduct implements Lookup.
func (m *Memory) GetProduct(_ context.Context, id pricing.ProductID) (pricing.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return pricing.Product{}, ErrProductNotFound
	}
	return p, nil
}
