package pricing

import (
	"errors"
	"time"
)

var (
	// ErrRuleInactive is returned for rules switched off by the merchant.
	ErrRuleInactive = errors.New("cart rule not active")
	// ErrRuleNotStarted is returned before the rule's validity window opens.
	ErrRuleNotStarted = errors.New("cart rule not started")
	// ErrRuleExpired is returned once the validity window has closed.
	ErrRuleExpired = errors.New("cart rule expired")
	// ErrEmptyCart indicates the cart has no products to discount.
	ErrEmptyCart = errors.New("cart rule requires a non-empty cart")
	// ErrRestrictionMissing indicates the restricted product is not in the cart.
	ErrRestrictionMissing = errors.New("cart rule restricted product not in cart")
	// ErrQuantityExhausted indicates the rule has no remaining global usages.
	ErrQuantityExhausted = errors.New("cart rule quantity exhausted")
	// ErrPerUserLimitReached indicates the customer used up their allowance.
	ErrPerUserLimitReached = errors.New("cart rule per-user limit reached")
)

// CheckValidity reports why rule cannot be applied to the cart at now, or nil
// when it can. It never mutates its inputs.
func CheckValidity(rule Rule, state CartState, now time.Time) error {
	if !rule.Active {
		return ErrRuleInactive
	}
	if !rule.ValidFrom.IsZero() && now.Before(rule.ValidFrom) {
		return ErrRuleNotStarted
	}
	if !rule.ValidTo.IsZero() && now.After(rule.ValidTo) {
		return ErrRuleExpired
	}
	if !hasProducts(state.Lines) {
		return ErrEmptyCart
	}
	if rule.RestrictionProductID != nil && !containsProduct(state.Lines, *rule.RestrictionProductID) {
		return ErrRestrictionMissing
	}
	if rule.QuantityRemaining <= 0 {
		return ErrQuantityExhausted
	}
	if rule.QuantityPerUser > 0 && state.RuleUsage[rule.ID] >= rule.QuantityPerUser {
		return ErrPerUserLimitReached
	}
	return nil
}

// IsValid reports whether rule may be applied to the cart at now.
func IsValid(rule Rule, state CartState, now time.Time) bool {
	return CheckValidity(rule, state, now) == nil
}

// AllValid checks each rule in order and reports whether every one of them is
// valid. Every rule is checked even after a failure; the per-rule errors are
// returned in input order.
func AllValid(rules []Rule, state CartState, now time.Time) (bool, []error) {
	ok := true
	errs := make([]error, len(rules))
	for i, rule := range rules {
		errs[i] = CheckValidity(rule, state, now)
		ok = ok && errs[i] == nil
	}
	return ok, errs
}

func hasProducts(lines []LineItem) bool {
	for _, line := range lines {
		if line.Quantity > 0 && !line.Gift {
			return true
		}
	}
	return false
}

func containsProduct(lines []LineItem, id ProductID) bool {
	for _, line := range lines {
		if line.ProductID == id && line.Quantity > 0 && !line.Gift {
			return true
		}
	}
	return false
}
