package pricing

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ComputeTotal returns the cart total once every rule has been applied in
// priority order. Rules are assumed to be valid for the cart; use Price to
// filter them first. Line subtotals are rounded half-up to the currency
// precision before any reduction, and the total never drops below zero.
func ComputeTotal(lines []LineItem, rules []Rule, cur Currency) decimal.Decimal {
	cur = cur.orDefault()
	calc := newCalculation(lines, cur.Precision)
	for _, rule := range SortByPriority(rules) {
		calc.apply(rule)
	}
	return calc.total(cur)
}

// Price runs a full pricing pass: each attached rule is checked against the
// cart, gifts of valid rules are added, then valid rules are applied in
// priority order. Invalid rules are reported with the reason they were
// skipped and never abort the pass.
func Price(state CartState, rules []Rule, now time.Time, cur Currency) Result {
	cur = cur.orDefault()
	ordered := SortByPriority(rules)
	outcomes := make([]RuleOutcome, len(ordered))
	valid := make([]bool, len(ordered))

	lines := state.Lines
	for i, rule := range ordered {
		outcomes[i] = RuleOutcome{
			RuleID:    rule.ID,
			Priority:  rule.Priority,
			Kind:      rule.Kind(),
			Scope:     rule.Scope(),
			Reduction: decimal.Zero,
		}
		if err := CheckValidity(rule, state, now); err != nil {
			outcomes[i].Reason = err.Error()
			continue
		}
		valid[i] = true
		outcomes[i].Applied = true
		if rule.HasGift() {
			lines = ApplyGift(lines, rule, state.Gifts[*rule.GiftProductID])
			outcomes[i].GiftProductID = rule.GiftProductID
		}
	}

	calc := newCalculation(lines, cur.Precision)
	for i, rule := range ordered {
		if valid[i] {
			outcomes[i].Reduction = calc.apply(rule)
		}
	}

	res := Result{
		Currency:        cur.Code,
		Subtotal:        calc.subtotal,
		ProductDiscount: decimal.Zero,
		GlobalDiscount:  calc.global,
		Total:           calc.total(cur),
		Lines:           make([]LineBreakdown, 0, len(calc.lines)),
		Rules:           outcomes,
		ProductCount:    ProductCount(lines),
	}
	for _, l := range calc.lines {
		res.ProductDiscount = res.ProductDiscount.Add(l.reduction)
		res.Lines = append(res.Lines, LineBreakdown{
			ProductID: l.item.ProductID,
			Quantity:  l.item.Quantity,
			UnitPrice: l.item.UnitPriceTaxIncl,
			LineTotal: l.total,
			Reduction: l.reduction,
			Remaining: l.remaining,
			InStock:   l.item.InStock,
			Gift:      l.item.Gift,
		})
	}
	return res
}

// SortByPriority returns a copy of rules ordered by ascending priority. Rules
// sharing a priority keep their attachment order.
func SortByPriority(rules []Rule) []Rule {
	out := slices.Clone(rules)
	slices.SortStableFunc(out, func(a, b Rule) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}

// LineTotal is the rounded tax-included subtotal of one line.
func LineTotal(line LineItem, precision int32) decimal.Decimal {
	if line.Quantity <= 0 || line.UnitPriceTaxIncl.IsNegative() {
		return decimal.Zero
	}
	return line.UnitPriceTaxIncl.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(precision)
}

type lineState struct {
	item      LineItem
	total     decimal.Decimal
	reduction decimal.Decimal
	remaining decimal.Decimal
}

type calculation struct {
	precision int32
	lines     []lineState
	subtotal  decimal.Decimal
	global    decimal.Decimal
}

func newCalculation(lines []LineItem, precision int32) *calculation {
	c := &calculation{
		precision: precision,
		lines:     make([]lineState, 0, len(lines)),
		subtotal:  decimal.Zero,
		global:    decimal.Zero,
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		total := LineTotal(line, precision)
		c.lines = append(c.lines, lineState{
			item:      line,
			total:     total,
			reduction: decimal.Zero,
			remaining: total,
		})
		c.subtotal = c.subtotal.Add(total)
	}
	return c
}

// running is the cart total left after every reduction applied so far.
func (c *calculation) running() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.lines {
		sum = sum.Add(l.remaining)
	}
	return sum.Sub(c.global)
}

func (c *calculation) total(cur Currency) decimal.Decimal {
	t := c.running()
	if t.IsNegative() {
		t = decimal.Zero
	}
	return t.Mul(cur.rate()).Round(cur.Precision)
}

// apply subtracts the reduction of rule from the running totals and returns
// it.
func (c *calculation) apply(rule Rule) decimal.Decimal {
	if rule.RestrictionProductID != nil {
		idx := c.productLines(*rule.RestrictionProductID)
		base := decimal.Zero
		for _, i := range idx {
			base = base.Add(c.lines[i].remaining)
		}
		reduction := c.reduction(rule, base, idx)
		left := reduction
		for _, i := range idx {
			part := decimal.Min(left, c.lines[i].remaining)
			c.lines[i].remaining = c.lines[i].remaining.Sub(part)
			c.lines[i].reduction = c.lines[i].reduction.Add(part)
			left = left.Sub(part)
		}
		return reduction
	}

	base := c.running()
	if base.IsNegative() {
		base = decimal.Zero
	}
	reduction := c.reduction(rule, base, c.payableLines())
	c.global = c.global.Add(reduction)
	return reduction
}

func (c *calculation) reduction(rule Rule, base decimal.Decimal, idx []int) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	var r decimal.Decimal
	switch rule.Kind() {
	case KindPercent:
		r = base.Mul(rule.ReductionPercent).Div(hundred).Round(c.precision)
	default:
		amount := rule.ReductionAmount
		if !rule.AmountTaxIncluded {
			amount = c.withTax(amount, idx)
		}
		r = amount.Round(c.precision)
	}
	if r.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(r, base)
}

// withTax converts a tax-excluded amount to a tax-included one. The amount is
// spread over the lines in idx in proportion to their tax-excluded remaining
// value, and each share is taxed at its line's rate.
func (c *calculation) withTax(amount decimal.Decimal, idx []int) decimal.Decimal {
	if len(idx) == 0 {
		return amount
	}
	rate := c.lines[idx[0]].item.TaxRate
	uniform := true
	for _, i := range idx[1:] {
		if !c.lines[i].item.TaxRate.Equal(rate) {
			uniform = false
			break
		}
	}
	if uniform {
		return amount.Mul(taxFactor(rate))
	}

	excl := make([]decimal.Decimal, len(idx))
	sum := decimal.Zero
	for k, i := range idx {
		excl[k] = c.lines[i].remaining.Div(taxFactor(c.lines[i].item.TaxRate))
		sum = sum.Add(excl[k])
	}
	if !sum.IsPositive() {
		return amount.Mul(taxFactor(rate))
	}
	out := decimal.Zero
	for k, i := range idx {
		share := amount.Mul(excl[k]).Div(sum)
		out = out.Add(share.Mul(taxFactor(c.lines[i].item.TaxRate)))
	}
	return out
}

func (c *calculation) productLines(id ProductID) []int {
	var idx []int
	for i, l := range c.lines {
		if l.item.ProductID == id && !l.item.Gift {
			idx = append(idx, i)
		}
	}
	return idx
}

func (c *calculation) payableLines() []int {
	var idx []int
	for i, l := range c.lines {
		if l.remaining.IsPositive() {
			idx = append(idx, i)
		}
	}
	return idx
}

func taxFactor(rate decimal.Decimal) decimal.Decimal {
	return one.Add(rate.Div(hundred))
}
