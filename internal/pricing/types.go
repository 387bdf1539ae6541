package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductID identifies a catalog product.
type ProductID int64

// RuleID identifies a cart rule.
type RuleID int64

// Product is the catalog view the pricing pass needs.
type Product struct {
	ID           ProductID       `json:"id"`
	PriceTaxIncl decimal.Decimal `json:"price_tax_incl"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	InStock      bool            `json:"in_stock"`
}

// LineItem is one product entry of a cart.
type LineItem struct {
	ProductID        ProductID       `json:"product_id"`
	Quantity         int             `json:"quantity"`
	UnitPriceTaxIncl decimal.Decimal `json:"unit_price_tax_incl"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	InStock          bool            `json:"in_stock"`
	Gift             bool            `json:"gift,omitempty"`
}

// LineFromProduct builds a cart line for qty units of p.
func LineFromProduct(p Product, qty int) LineItem {
	return LineItem{
		ProductID:        p.ID,
		Quantity:         qty,
		UnitPriceTaxIncl: p.PriceTaxIncl,
		TaxRate:          p.TaxRate,
		InStock:          p.InStock,
	}
}

// Kind discriminates how a rule computes its reduction.
type Kind string

const (
	// KindPercent reduces the base by ReductionPercent.
	KindPercent Kind = "percent"
	// KindAmount reduces the base by a fixed ReductionAmount.
	KindAmount Kind = "amount"
)

// Scope discriminates which value a rule reduces.
type Scope string

const (
	// ScopeGlobal rules reduce the whole remaining cart total.
	ScopeGlobal Scope = "global"
	// ScopeProduct rules reduce the remaining value of one product line.
	ScopeProduct Scope = "product"
)

// Rule is a promotional cart rule. A rule is percent-type when
// ReductionPercent is positive and amount-type otherwise.
type Rule struct {
	ID       RuleID `json:"id"`
	Name     string `json:"name,omitempty"`
	Code     string `json:"code,omitempty"`
	Priority int    `json:"priority"`

	ReductionPercent decimal.Decimal `json:"reduction_percent"`
	ReductionAmount  decimal.Decimal `json:"reduction_amount"`
	// AmountTaxIncluded reports whether ReductionAmount already includes tax.
	// When false the amount is taxed with the rates of the lines it reduces.
	AmountTaxIncluded bool `json:"amount_tax_included"`

	RestrictionProductID *ProductID `json:"restriction_product_id,omitempty"`
	GiftProductID        *ProductID `json:"gift_product_id,omitempty"`

	ValidFrom         time.Time `json:"valid_from"`
	ValidTo           time.Time `json:"valid_to"`
	QuantityRemaining int       `json:"quantity_remaining"`
	QuantityPerUser   int       `json:"quantity_per_user"`
	Active            bool      `json:"active"`
}

// Kind reports whether the rule is percent or amount based.
func (r Rule) Kind() Kind {
	if r.ReductionPercent.IsPositive() {
		return KindPercent
	}
	return KindAmount
}

// Scope reports whether the rule is restricted to a single product.
func (r Rule) Scope() Scope {
	if r.RestrictionProductID != nil {
		return ScopeProduct
	}
	return ScopeGlobal
}

// HasGift reports whether applying the rule grants a gift product.
func (r Rule) HasGift() bool {
	return r.GiftProductID != nil
}

// CartState carries everything a pricing pass reads. Collaborators resolve
// usage counters and gift products before the pass starts.
type CartState struct {
	Lines []LineItem
	// RuleUsage holds how many times the cart's customer already used a rule.
	RuleUsage map[RuleID]int
	// Gifts holds catalog data for gift products referenced by the rules.
	Gifts map[ProductID]Product
}

// Currency describes how totals are converted and rounded. The zero value
// prices like DefaultCurrency; set Code to use a Precision of 0.
type Currency struct {
	Code      string
	Precision int32
	// Rate converts from the shop's default currency. Zero means 1.
	Rate decimal.Decimal
}

// DefaultCurrency is a two-decimal currency with a unit rate.
var DefaultCurrency = Currency{Code: "EUR", Precision: 2, Rate: decimal.NewFromInt(1)}

// orDefault maps the zero Currency to DefaultCurrency.
func (c Currency) orDefault() Currency {
	if c.Code == "" && c.Precision == 0 && c.Rate.IsZero() {
		return DefaultCurrency
	}
	return c
}

func (c Currency) rate() decimal.Decimal {
	if c.Rate.IsPositive() {
		return c.Rate
	}
	return decimal.NewFromInt(1)
}

// LineBreakdown reports how one line contributed to the total.
type LineBreakdown struct {
	ProductID ProductID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Reduction decimal.Decimal `json:"reduction"`
	Remaining decimal.Decimal `json:"remaining"`
	InStock   bool            `json:"in_stock"`
	Gift      bool            `json:"gift,omitempty"`
}

// RuleOutcome records what happened to one attached rule.
type RuleOutcome struct {
	RuleID        RuleID          `json:"rule_id"`
	Priority      int             `json:"priority"`
	Kind          Kind            `json:"kind"`
	Scope         Scope           `json:"scope"`
	Applied       bool            `json:"applied"`
	Reason        string          `json:"reason,omitempty"`
	Reduction     decimal.Decimal `json:"reduction"`
	GiftProductID *ProductID      `json:"gift_product_id,omitempty"`
}

// Result is the outcome of a pricing pass.
type Result struct {
	Currency        string          `json:"currency"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ProductDiscount decimal.Decimal `json:"product_discount"`
	GlobalDiscount  decimal.Decimal `json:"global_discount"`
	Total           decimal.Decimal `json:"total"`
	Lines           []LineBreakdown `json:"lines"`
	Rules           []RuleOutcome   `json:"rules"`
	ProductCount    int             `json:"product_count"`
}

// AppliedRules returns the outcomes of rules that contributed to the pass.
func (r Result) AppliedRules() []RuleOutcome {
	out := make([]RuleOutcome, 0, len(r.Rules))
	for _, o := range r.Rules {
		if o.Applied {
			out = append(out, o)
		}
	}
	return out
}
