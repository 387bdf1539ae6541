package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyGiftAddsZeroPriceLine(t *testing.T) {
	lines := testLines(qty{1, 2})
	out := ApplyGift(lines, testRule(13), testProduct(4))

	require.Len(t, lines, 1, "input must not grow")
	require.Len(t, out, 2)
	gift := out[1]
	require.Equal(t, ProductID(4), gift.ProductID)
	require.Equal(t, 1, gift.Quantity)
	require.True(t, gift.UnitPriceTaxIncl.IsZero())
	require.True(t, gift.Gift)
	require.False(t, gift.InStock)
	require.Equal(t, 3, ProductCount(out))
}

func TestApplyGiftWithoutGiftProduct(t *testing.T) {
	lines := testLines(qty{1, 2})
	out := ApplyGift(lines, testRule(1), Product{})
	require.Equal(t, lines, out)
}

func TestProductCountIgnoresEmptyLines(t *testing.T) {
	lines := append(testLines(qty{1, 2}, qty{3, 1}), LineItem{ProductID: 2, Quantity: 0})
	require.Equal(t, 3, ProductCount(lines))
}
