package cart

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCheckedOut is returned when mutating a cart that was already ordered.
	ErrCheckedOut = errors.New("cart already checked out")
	// ErrRateLimited is returned when a customer attaches rules too often.
	ErrRateLimited = errors.New("too many cart rule attempts")
)

// Attachment is a rule attached to a cart together with the validity it had
// when it was attached.
type Attachment struct {
	Rule       pricing.Rule
	AttachedAt time.Time
	// Err is why the rule was not valid when attached, nil if it was.
	Err error
}

// Cart owns its line items and attached rules. It is not safe for concurrent
// use; Service serializes access per cart.
type Cart struct {
	ID          uuid.UUID
	Customer    string
	CheckedOut  bool
	lines       []pricing.LineItem
	attachments []Attachment
}

// New returns an empty cart for customer.
func New(customer string) *Cart {
	return &Cart{ID: uuid.New(), Customer: customer}
}

// UpdateQty sets the quantity of product p, adding the line when missing.
// A zero quantity removes the line. Unit price, tax and stock are refreshed
// from p.
func (c *Cart) UpdateQty(p pricing.Product, qty int) error {
	if c.CheckedOut {
		return ErrCheckedOut
	}
	if qty < 0 {
		return fmt.Errorf("qty must not be negative: %w", ErrInvalidInput)
	}
	idx := slices.IndexFunc(c.lines, func(l pricing.LineItem) bool { return l.ProductID == p.ID })
	switch {
	case qty == 0 && idx >= 0:
		c.lines = slices.Delete(c.lines, idx, idx+1)
	case qty == 0:
	case idx >= 0:
		c.lines[idx] = pricing.LineFromProduct(p, qty)
	default:
		c.lines = append(c.lines, pricing.LineFromProduct(p, qty))
	}
	return nil
}

// Quantity returns the quantity of product id in the cart.
func (c *Cart) Quantity(id pricing.ProductID) int {
	for _, l := range c.lines {
		if l.ProductID == id {
			return l.Quantity
		}
	}
	return 0
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []pricing.LineItem {
	return slices.Clone(c.lines)
}

// ProductCount sums the quantities of stored lines. Gifts are only counted
// in pricing results.
func (c *Cart) ProductCount() int {
	return pricing.ProductCount(c.lines)
}

// AddRule attaches rule and reports whether it is valid for the cart at now.
// The rule is recorded even when invalid; it will simply not contribute
// until the cart makes it valid. Attaching the same rule twice keeps the
// first attachment.
func (c *Cart) AddRule(rule pricing.Rule, now time.Time, usage map[pricing.RuleID]int) (bool, error) {
	if c.CheckedOut {
		return false, ErrCheckedOut
	}
	state := pricing.CartState{Lines: c.lines, RuleUsage: usage}
	if idx := c.ruleIndex(rule.ID); idx >= 0 {
		return pricing.IsValid(c.attachments[idx].Rule, state, now), nil
	}
	err := pricing.CheckValidity(rule, state, now)
	c.attachments = append(c.attachments, Attachment{Rule: rule, AttachedAt: now, Err: err})
	return err == nil, nil
}

// RemoveRule detaches rule id and reports whether it was attached.
func (c *Cart) RemoveRule(id pricing.RuleID) bool {
	idx := c.ruleIndex(id)
	if idx < 0 {
		return false
	}
	c.attachments = slices.Delete(c.attachments, idx, idx+1)
	return true
}

// Attachments returns the attached rules in attachment order.
func (c *Cart) Attachments() []Attachment {
	return slices.Clone(c.attachments)
}

// Rules returns the attached rule definitions in attachment order.
func (c *Cart) Rules() []pricing.Rule {
	out := make([]pricing.Rule, 0, len(c.attachments))
	for _, a := range c.attachments {
		out = append(out, a.Rule)
	}
	return out
}

// State builds the input of a pricing pass.
func (c *Cart) State(usage map[pricing.RuleID]int, gifts map[pricing.ProductID]pricing.Product) pricing.CartState {
	return pricing.CartState{Lines: c.Lines(), RuleUsage: usage, Gifts: gifts}
}

// Price prices the cart with its attached rules.
func (c *Cart) Price(now time.Time, cur pricing.Currency, usage map[pricing.RuleID]int, gifts map[pricing.ProductID]pricing.Product) pricing.Result {
	return pricing.Price(c.State(usage, gifts), c.Rules(), now, cur)
}

func (c *Cart) ruleIndex(id pricing.RuleID) int {
	return slices.IndexFunc(c.attachments, func(a Attachment) bool { return a.Rule.ID == id })
}
