package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

var fixtureNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type productFixture struct {
	price      string
	outOfStock bool
}

var productFixtures = map[ProductID]productFixture{
	1: {price: "19.812"},
	2: {price: "32.388"},
	3: {price: "31.188"},
	4: {price: "35.567", outOfStock: true},
}

type ruleFixture struct {
	priority    int
	percent     int64
	amount      int64
	restriction ProductID
	gift        ProductID
}

var ruleFixtures = map[RuleID]ruleFixture{
	1:  {priority: 1, percent: 50},
	2:  {priority: 2, percent: 50},
	3:  {priority: 3, percent: 10},
	4:  {priority: 4, amount: 5},
	5:  {priority: 5, amount: 500},
	6:  {priority: 6, amount: 10},
	7:  {priority: 7, percent: 50},
	8:  {priority: 8, amount: 5, restriction: 2},
	9:  {priority: 8, amount: 500, restriction: 2},
	10: {priority: 8, percent: 50, restriction: 2},
	11: {priority: 8, percent: 10, restriction: 2},
	12: {priority: 8, percent: 10, gift: 3},
	13: {priority: 8, percent: 10, gift: 4},
}

// qty is a product id / quantity pair; order matters.
type qty struct {
	id ProductID
	n  int
}

func testProduct(id ProductID) Product {
	f := productFixtures[id]
	return Product{
		ID:           id,
		PriceTaxIncl: decimal.RequireFromString(f.price),
		TaxRate:      decimal.NewFromInt(20),
		InStock:      !f.outOfStock,
	}
}

func testLines(items ...qty) []LineItem {
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, LineFromProduct(testProduct(it.id), it.n))
	}
	return lines
}

func testRule(id RuleID) Rule {
	f := ruleFixtures[id]
	r := Rule{
		ID:                id,
		Name:              "foo",
		Code:              "bar",
		Priority:          f.priority,
		ReductionPercent:  decimal.NewFromInt(f.percent),
		ReductionAmount:   decimal.NewFromInt(f.amount),
		ValidFrom:         fixtureNow.Add(-time.Second),
		ValidTo:           fixtureNow.AddDate(1, 0, 0),
		QuantityRemaining: 1000,
		QuantityPerUser:   1000,
		Active:            true,
	}
	if f.restriction != 0 {
		p := f.restriction
		r.RestrictionProductID = &p
	}
	if f.gift != 0 {
		p := f.gift
		r.GiftProductID = &p
	}
	return r
}

func testRules(ids ...RuleID) []Rule {
	rules := make([]Rule, 0, len(ids))
	for _, id := range ids {
		rules = append(rules, testRule(id))
	}
	return rules
}

func testState(lines []LineItem) CartState {
	gifts := make(map[ProductID]Product, len(productFixtures))
	for id := range productFixtures {
		gifts[id] = testProduct(id)
	}
	return CartState{Lines: lines, Gifts: gifts}
}

var threeProducts = []qty{{2, 2}, {1, 3}, {3, 1}}
