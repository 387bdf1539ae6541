package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/cartrule"
	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const getRuleSQL = `SELECT id, name, code, priority, reduction_percent::text, reduction_amount::text,
	reduction_tax, restriction_product_id, gift_product_id, date_from, date_to,
	quantity, quantity_per_user, active
FROM cart_rules WHERE id = $1`

// consumeRuleSQL decrements the rule quantity only while it is positive and
// the customer is under the per-user limit, then records the usage. No row
// comes back when a quota is exhausted.
const consumeRuleSQL = `WITH used AS (
	SELECT count(*) AS n FROM cart_rule_usage WHERE cart_rule_id = $1 AND customer = $2
), taken AS (
	UPDATE cart_rules SET quantity = quantity - 1
	WHERE id = $1 AND quantity > 0
		AND (quantity_per_user = 0 OR $2 = '' OR (SELECT n FROM used) < quantity_per_user)
	RETURNING id
)
INSERT INTO cart_rule_usage (cart_rule_id, customer)
SELECT id, $2 FROM taken
RETURNING cart_rule_id`

// releaseRuleSQL removes the latest usage row of the customer and puts the
// quantity back. No row comes back when there was nothing to release.
const releaseRuleSQL = `WITH gone AS (
	DELETE FROM cart_rule_usage
	WHERE id = (
		SELECT id FROM cart_rule_usage
		WHERE cart_rule_id = $1 AND customer = $2
		ORDER BY id DESC LIMIT 1
	)
	RETURNING cart_rule_id
)
UPDATE cart_rules SET quantity = quantity + 1
WHERE id IN (SELECT cart_rule_id FROM gone)
RETURNING id`

const ruleUsageSQL = `SELECT count(*) FROM cart_rule_usage WHERE cart_rule_id = $1 AND customer = $2`

const ruleExistsSQL = `SELECT id FROM cart_rules WHERE id = $1`

// Rules reads cart rules and consumes their usage.
type Rules struct {
	DB DBTX
}

var _ cartrule.Repository = Rules{}

// GetRule implements cartrule.Source.
func (r Rules) GetRule(ctx context.Context, id pricing.RuleID) (pricing.Rule, error) {
	if r.DB == nil {
		return pricing.Rule{}, errors.New("store: database not configured")
	}
	var (
		row               pricing.Rule
		rowID             int64
		percent, amount   string
		restriction, gift *int64
		dateFrom, dateTo  time.Time
	)
	err := r.DB.QueryRow(ctx, getRuleSQL, int64(id)).Scan(
		&rowID, &row.Name, &row.Code, &row.Priority, &percent, &amount,
		&row.AmountTaxIncluded, &restriction, &gift, &dateFrom, &dateTo,
		&row.QuantityRemaining, &row.QuantityPerUser, &row.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricing.Rule{}, cartrule.ErrRuleNotFound
		}
		return pricing.Rule{}, fmt.Errorf("store: get cart rule %d: %w", id, err)
	}
	row.ID = pricing.RuleID(rowID)
	if row.ReductionPercent, err = decimal.NewFromString(percent); err != nil {
		return pricing.Rule{}, fmt.Errorf("store: cart rule %d percent: %w", id, err)
	}
	if row.ReductionAmount, err = decimal.NewFromString(amount); err != nil {
		return pricing.Rule{}, fmt.Errorf("store: cart rule %d amount: %w", id, err)
	}
	row.RestrictionProductID = toProductID(restriction)
	row.GiftProductID = toProductID(gift)
	row.ValidFrom = dateFrom
	row.ValidTo = dateTo
	return row, nil
}

// Consume implements cartrule.Consumer.
func (r Rules) Consume(ctx context.Context, id pricing.RuleID, customer string) (bool, error) {
	if r.DB == nil {
		return false, errors.New("store: database not configured")
	}
	var got int64
	err := r.DB.QueryRow(ctx, consumeRuleSQL, int64(id), customer).Scan(&got)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("store: consume cart rule %d: %w", id, err)
	}
	// Nothing taken: tell an exhausted rule apart from a missing one.
	var exists int64
	if err := r.DB.QueryRow(ctx, ruleExistsSQL, int64(id)).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, cartrule.ErrRuleNotFound
		}
		return false, fmt.Errorf("store: consume cart rule %d: %w", id, err)
	}
	return false, nil
}

// Release implements cartrule.Consumer.
func (r Rules) Release(ctx context.Context, id pricing.RuleID, customer string) error {
	if r.DB == nil {
		return errors.New("store: database not configured")
	}
	var got int64
	err := r.DB.QueryRow(ctx, releaseRuleSQL, int64(id), customer).Scan(&got)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("store: release cart rule %d: %w", id, err)
	}
	return nil
}

// Usage implements cartrule.Consumer.
func (r Rules) Usage(ctx context.Context, id pricing.RuleID, customer string) (int, error) {
	if r.DB == nil {
		return 0, errors.New("store: database not configured")
	}
	var n int64
	if err := r.DB.QueryRow(ctx, ruleUsageSQL, int64(id), customer).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: cart rule %d usage: %w", id, err)
	}
	return int(n), nil
}

func toProductID(v *int64) *pricing.ProductID {
	if v == nil {
		return nil
	}
	id := pricing.ProductID(*v)
	return &id
}
