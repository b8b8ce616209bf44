package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookAddRemoveInvariants(t *testing.T) {
	b := NewBook("XYZ")

	o1 := NewOrder("1", "XYZ", Buy, Limit, GTC, d("10"), d("1"), 0)
	o2 := NewOrder("2", "XYZ", Buy, Limit, GTC, d("10"), d("1"), 1)
	o3 := NewOrder("3", "XYZ", Buy, Limit, GTC, d("11"), d("1"), 2)
	b.Add(o1)
	b.Add(o2)
	b.Add(o3)

	assert.Equal(t, 3, b.Count())
	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(d("11")))

	front := b.frontAt(Buy, d("10"))
	require.NotNil(t, front)
	assert.Equal(t, "1", front.ID)

	removed, ok := b.Remove("3")
	require.True(t, ok)
	assert.Equal(t, "3", removed.ID)
	bid, ok = b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(d("10")))

	_, ok = b.Remove("1")
	require.True(t, ok)
	_, ok = b.Remove("2")
	require.True(t, ok)
	_, ok = b.BestBid()
	assert.False(t, ok, "empty level must be removed")
	assert.Equal(t, 0, b.Count())
}

func TestBookExportImportRoundTrip(t *testing.T) {
	b := NewBook("XYZ")
	b.Add(NewOrder("1", "XYZ", Buy, Limit, GTC, d("10"), d("1"), 0))
	b.Add(NewOrder("2", "XYZ", Buy, Limit, GTC, d("11"), d("2"), 1))
	b.Add(NewOrder("3", "XYZ", Sell, Limit, GTC, d("12"), d("3"), 2))

	bids := b.ExportSide(Buy)
	asks := b.ExportSide(Sell)

	restored := NewBook("XYZ")
	restored.ImportSide(Buy, bids)
	restored.ImportSide(Sell, asks)

	assert.Equal(t, b.Count(), restored.Count())
	assert.Equal(t, 2, restored.CountSide(Buy))
	assert.Equal(t, 1, restored.CountSide(Sell))

	order, ok := restored.Get("2")
	require.True(t, ok)
	assert.True(t, order.Quantity.Equal(d("2")))
}

func TestBookSpread(t *testing.T) {
	b := NewBook("XYZ")
	_, ok := b.Spread()
	assert.False(t, ok)

	b.Add(NewOrder("1", "XYZ", Buy, Limit, GTC, d("10"), d("1"), 0))
	b.Add(NewOrder("2", "XYZ", Sell, Limit, GTC, d("12"), d("1"), 1))
	spread, ok := b.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(d("2")))
}
