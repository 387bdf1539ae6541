package pricing

import "github.com/shopspring/decimal"

// ApplyGift returns lines extended with the free product granted by rule.
// The gift line is added with quantity 1 and a zero price whether or not the
// gift product is in stock. Rules without a gift return lines unchanged. The
// input slice is never modified.
func ApplyGift(lines []LineItem, rule Rule, gift Product) []LineItem {
	out := make([]LineItem, len(lines), len(lines)+1)
	copy(out, lines)
	if rule.GiftProductID == nil {
		return out
	}
	return append(out, LineItem{
		ProductID:        *rule.GiftProductID,
		Quantity:         1,
		UnitPriceTaxIncl: decimal.Zero,
		TaxRate:          gift.TaxRate,
		InStock:          gift.InStock,
		Gift:             true,
	})
}

// ProductCount sums quantities over lines, gift lines included.
func ProductCount(lines []LineItem) int {
	count := 0
	for _, line := range lines {
		if line.Quantity > 0 {
			count += line.Quantity
		}
	}
	return count
}
