package cartrule

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

// Validate checks that rule is well formed and that its restriction and
// gift products exist in products. Configuration problems are returned as
// *ConfigError; lookup failures are returned wrapped.
func Validate(ctx context.Context, rule pricing.Rule, products catalog.Lookup) error {
	id := rule.ID
	if id <= 0 {
		return configErr(id, "id", ErrInvalidRule, "id must be positive")
	}
	if rule.ReductionPercent.IsNegative() || rule.ReductionPercent.GreaterThan(hundred) {
		return configErr(id, "reduction_percent", ErrInvalidRule, "must be between 0 and 100")
	}
	if rule.ReductionAmount.IsNegative() {
		return configErr(id, "reduction_amount", ErrInvalidRule, "must not be negative")
	}
	if rule.ReductionPercent.IsPositive() && rule.ReductionAmount.IsPositive() {
		return configErr(id, "reduction_amount", ErrInvalidRule, "percent and amount are mutually exclusive")
	}
	if rule.ReductionPercent.IsZero() && rule.ReductionAmount.IsZero() && rule.GiftProductID == nil {
		return configErr(id, "reduction", ErrInvalidRule, "rule grants neither a reduction nor a gift")
	}
	if !rule.ValidFrom.IsZero() && !rule.ValidTo.IsZero() && rule.ValidTo.Before(rule.ValidFrom) {
		return configErr(id, "valid_to", ErrInvalidRule, "ends before it starts")
	}
	if rule.QuantityRemaining < 0 {
		return configErr(id, "quantity", ErrInvalidRule, "must not be negative")
	}
	if rule.QuantityPerUser < 0 {
		return configErr(id, "quantity_per_user", ErrInvalidRule, "must not be negative")
	}
	if rule.RestrictionProductID != nil {
		if err := productExists(ctx, products, *rule.RestrictionProductID); err != nil {
			return wrapLookup(id, "restriction_product_id", *rule.RestrictionProductID, err)
		}
	}
	if rule.GiftProductID != nil {
		if err := productExists(ctx, products, *rule.GiftProductID); err != nil {
			return wrapLookup(id, "gift_product_id", *rule.GiftProductID, err)
		}
	}
	return nil
}

func productExists(ctx context.Context, products catalog.Lookup, id pricing.ProductID) error {
	if products == nil {
		return errors.New("cartrule: catalog not configured")
	}
	_, err := products.GetProduct(ctx, id)
	return err
}

func wrapLookup(id pricing.RuleID, field string, product pricing.ProductID, err error) error {
	if errors.Is(err, catalog.ErrProductNotFound) {
		return configErr(id, field, ErrUnknownProduct, fmt.Sprintf("product %d", product))
	}
	return fmt.Errorf("cartrule: lookup product %d: %w", product, err)
}
