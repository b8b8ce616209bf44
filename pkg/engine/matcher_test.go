package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// S1 — cross on open.
func TestMatcherCrossOnOpen(t *testing.T) {
	m := NewMatcher("BTCUSDT")
	ctx := &ApplyContext{Index: 1}

	buy := NewOrder("B1", "BTCUSDT", Buy, Limit, GTC, d("50000.00"), d("1.00000"), ctx.Now())
	trades := m.Place(buy, ctx)
	assert.Empty(t, trades)
	bid, ok := m.Book().BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(d("50000.00")))

	ctx2 := &ApplyContext{Index: 2}
	sell := NewOrder("S1", "BTCUSDT", Sell, Limit, GTC, d("50000.00"), d("0.4"), ctx2.Now())
	trades = m.Place(sell, ctx2)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("50000.00")))
	assert.True(t, trades[0].Quantity.Equal(d("0.4")))

	resting, ok := m.Book().Get("B1")
	require.True(t, ok)
	assert.True(t, resting.Remaining().Equal(d("0.6")))
	bid, ok = m.Book().BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(d("50000.00")))
}

// S2 — price-time priority.
func TestMatcherPriceTimePriority(t *testing.T) {
	m := NewMatcher("XYZ")
	ctx := &ApplyContext{Index: 1}
	b1 := NewOrder("B1", "XYZ", Buy, Limit, GTC, d("100"), d("1"), ctx.Now())
	m.Place(b1, ctx)

	ctx2 := &ApplyContext{Index: 2}
	b2 := NewOrder("B2", "XYZ", Buy, Limit, GTC, d("100"), d("1"), ctx2.Now())
	m.Place(b2, ctx2)

	ctx3 := &ApplyContext{Index: 3}
	sell := NewOrder("S1", "XYZ", Sell, Market, GTC, decimal.Zero, d("1.5"), ctx3.Now())
	trades := m.Place(sell, ctx3)

	require.Len(t, trades, 2)
	assert.Equal(t, "B1", firstOf(trades[0].BuyerOrderID, trades[0].SellerOrderID, Buy))
	assert.True(t, trades[0].Quantity.Equal(d("1")))
	assert.Equal(t, "B2", firstOf(trades[1].BuyerOrderID, trades[1].SellerOrderID, Buy))
	assert.True(t, trades[1].Quantity.Equal(d("0.5")))

	b2Resting, ok := m.Book().Get("B2")
	require.True(t, ok)
	assert.True(t, b2Resting.Remaining().Equal(d("0.5")))

	_, ok = m.Book().Get("B1")
	assert.False(t, ok)
}

func firstOf(buyer, seller string, side OrderSide) string {
	if side == Buy {
		return buyer
	}
	return seller
}

// S3 — cancel.
func TestMatcherCancel(t *testing.T) {
	m := NewMatcher("XYZ")
	ctx := &ApplyContext{Index: 1}
	b1 := NewOrder("B1", "XYZ", Buy, Limit, GTC, d("100"), d("1"), ctx.Now())
	m.Place(b1, ctx)
	ctx2 := &ApplyContext{Index: 2}
	b2 := NewOrder("B2", "XYZ", Buy, Limit, GTC, d("100"), d("1"), ctx2.Now())
	m.Place(b2, ctx2)
	ctx3 := &ApplyContext{Index: 3}
	sell := NewOrder("S1", "XYZ", Sell, Market, GTC, decimal.Zero, d("1.5"), ctx3.Now())
	m.Place(sell, ctx3)

	cancelled, ok := m.Cancel("B2")
	require.True(t, ok)
	assert.Equal(t, "B2", cancelled.ID)

	_, ok = m.Book().BestBid()
	assert.False(t, ok)

	_, ok = m.Cancel("B2")
	assert.False(t, ok)
}

func TestMatcherDeterministicTradeIDs(t *testing.T) {
	run := func() []string {
		m := NewMatcher("XYZ")
		ctx := &ApplyContext{Index: 7}
		sellCtx := &ApplyContext{Index: 7}
		m.Place(NewOrder("B1", "XYZ", Buy, Limit, GTC, d("10"), d("1"), ctx.Now()), ctx)
		trades := m.Place(NewOrder("S1", "XYZ", Sell, Limit, GTC, d("10"), d("1"), sellCtx.Now()), sellCtx)
		ids := make([]string, len(trades))
		for i, tr := range trades {
			ids[i] = tr.ID
		}
		return ids
	}

	a := run()
	b := run()
	require.Equal(t, a, b)
}
