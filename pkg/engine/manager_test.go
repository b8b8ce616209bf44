package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSymbol(name string) *Symbol {
	return NewSymbol(name, "BTC", "USDT", 2, 5, d("0.00001"), d("1000"), d("0"), d("0"), 0)
}

func TestManagerApplyPlaceAndCancel(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddSymbol(newTestSymbol("BTCUSDT")))

	placeCmd := &Command{
		Type: CmdPlaceOrder,
		Order: &OrderInput{
			ID: "B1", Symbol: "BTCUSDT", Side: Buy, Type: Limit, TIF: GTC,
			Price: d("100"), Quantity: d("1"),
		},
	}
	payload, err := Encode(placeCmd)
	require.NoError(t, err)

	result := m.Apply(1, payload)
	require.NoError(t, result.Err)
	assert.Empty(t, result.Trades)

	_, matcher, ok := m.GetSymbolAndMatcher("BTCUSDT")
	require.True(t, ok)
	_, ok = matcher.Book().Get("B1")
	assert.True(t, ok)

	cancelCmd := &Command{Type: CmdCancelOrder, CancelSymbol: "BTCUSDT", CancelOrderID: "B1"}
	payload, err = Encode(cancelCmd)
	require.NoError(t, err)
	result = m.Apply(2, payload)
	require.NoError(t, result.Err)
	require.NotNil(t, result.Cancelled)
	assert.Equal(t, StatusCancelled, result.Cancelled.Status)
}

func TestManagerApplyUnknownSymbolDoesNotAbort(t *testing.T) {
	m := NewManager()
	cmd := &Command{
		Type: CmdPlaceOrder,
		Order: &OrderInput{
			ID: "B1", Symbol: "NOPE", Side: Buy, Type: Limit, TIF: GTC,
			Price: d("1"), Quantity: d("1"),
		},
	}
	payload, err := Encode(cmd)
	require.NoError(t, err)

	result := m.Apply(1, payload)
	assert.Error(t, result.Err, "rejection is reported but still considered applied")
}

func TestManagerUpdateSymbolLeavesMatcherUntouched(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddSymbol(newTestSymbol("BTCUSDT")))

	placeCmd := &Command{
		Type: CmdPlaceOrder,
		Order: &OrderInput{
			ID: "B1", Symbol: "BTCUSDT", Side: Buy, Type: Limit, TIF: GTC,
			Price: d("100"), Quantity: d("1"),
		},
	}
	payload, _ := Encode(placeCmd)
	m.Apply(1, payload)

	updateCmd := &Command{
		Type: CmdUpdateSymbol,
		Symbol: &SymbolInput{
			Name: "BTCUSDT", Base: "BTC", Quote: "USDT",
			PricePrecision: 2, QuantityPrecision: 5,
			MinQuantity: d("0.001"), MaxQuantity: d("500"),
		},
	}
	payload, _ = Encode(updateCmd)
	result := m.Apply(2, payload)
	require.NoError(t, result.Err)

	sym, matcher, ok := m.GetSymbolAndMatcher("BTCUSDT")
	require.True(t, ok)
	assert.True(t, sym.MinQuantity.Equal(d("0.001")))
	_, ok = matcher.Book().Get("B1")
	assert.True(t, ok, "update must not disturb resting orders")
}

func TestManagerSnapshotRestoreRoundTrip(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddSymbol(newTestSymbol("BTCUSDT")))

	placeCmd := &Command{
		Type: CmdPlaceOrder,
		Order: &OrderInput{
			ID: "B1", Symbol: "BTCUSDT", Side: Buy, Type: Limit, TIF: GTC,
			Price: d("100"), Quantity: d("1"),
		},
	}
	payload, _ := Encode(placeCmd)
	m.Apply(1, payload)

	data, err := m.Snapshot()
	require.NoError(t, err)

	restored := NewManager()
	require.NoError(t, restored.Restore(1, 1, data))

	sym, matcher, ok := restored.GetSymbolAndMatcher("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", sym.Name)
	order, ok := matcher.Book().Get("B1")
	require.True(t, ok)
	assert.True(t, order.Quantity.Equal(d("1")))

	redone, err := restored.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, data, redone, "re-snapshotting restored state must be byte-identical")
}

func TestManagerDelistDropsMatcher(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.AddSymbol(newTestSymbol("BTCUSDT")))
	require.NoError(t, m.DelistSymbol("BTCUSDT"))

	sym, matcher, ok := m.GetSymbolAndMatcher("BTCUSDT")
	assert.False(t, ok, "no matcher after delist")
	require.NotNil(t, sym)
	assert.Equal(t, SymbolDelisted, sym.Status)
	assert.Nil(t, matcher)
}
