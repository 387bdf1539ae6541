package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const getProductSQL = `SELECT id, price_tax_incl::text, tax_rate::text, in_stock FROM products WHERE id = $1`

// Products reads catalog products.
type Products struct {
	DB DBTX
}

// GetProduct implements catalog.Lookup.
func (p Products) GetProduct(ctx context.Context, id pricing.ProductID) (pricing.Product, error) {
	if p.DB == nil {
		return pricing.Product{}, errors.New("store: database not configured")
	}
	var (
		rowID       int64
		price, rate string
		inStock     bool
	)
	err := p.DB.QueryRow(ctx, getProductSQL, int64(id)).Scan(&rowID, &price, &rate, &inStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Product{}, catalog.ErrProductNotFound
		}
		return pricing.Product{}, fmt.Errorf("store: get product %d: %w", id, err)
	}
	priceDec, err := decimal.NewFromString(price)
	if err != nil {
		return pricing.Product{}, fmt.Errorf("store: product %d price: %w", id, err)
	}
	rateDec, err := decimal.NewFromString(rate)
	if err != nil {
		return pricing.Product{}, fmt.Errorf("store: product %d tax rate: %w", id, err)
	}
	return pricing.Product{
		ID:           pricing.ProductID(rowID),
		PriceTaxIncl: priceDec,
		TaxRate:      rateDec,
		InStock:      inStock,
	}, nil
}
