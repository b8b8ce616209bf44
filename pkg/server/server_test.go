package server

import (
	"context"
	"testing"

	"github.com/cuemby/spotmatch/pkg/engine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// fakeProposer applies a command directly to a manager instead of going
// through Raft, standing in for *raftnode.Node in these tests.
type fakeProposer struct {
	manager   *engine.Manager
	index     uint64
	committed bool
}

func (f *fakeProposer) Propose(ctx context.Context, data []byte) bool {
	if !f.committed {
		return false
	}
	f.index++
	f.manager.Apply(f.index, data)
	return true
}

func newTestServer(committed bool) (*Server, *engine.Manager) {
	mgr := engine.NewManager()
	srv := &Server{node: &fakeProposer{manager: mgr, committed: committed}, manager: mgr}
	return srv, mgr
}

func TestServerCreateAndPlaceOrder(t *testing.T) {
	srv, _ := newTestServer(true)
	ctx := context.Background()

	err := srv.CreateSymbol(ctx, engine.SymbolInput{
		Name: "BTCUSDT", Base: "BTC", Quote: "USDT",
		PricePrecision: 2, QuantityPrecision: 5,
		MinQuantity: decimal.NewFromInt(0), MaxQuantity: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	sym, ok := srv.GetSymbol("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, engine.SymbolActive, sym.Status)

	err = srv.PlaceOrder(ctx, engine.OrderInput{
		ID: "B1", Symbol: "BTCUSDT", Side: engine.Buy, Type: engine.Limit, TIF: engine.GTC,
		Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	bid, _, ok := srv.BestPrices("BTCUSDT")
	require.False(t, ok, "no ask yet, so BestPrices reports not-ok")
	_ = bid
}

func TestServerPlaceOrderFailsWhenNotCommitted(t *testing.T) {
	srv, _ := newTestServer(false)
	err := srv.PlaceOrder(context.Background(), engine.OrderInput{ID: "B1", Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, errNotCommitted)
}

func TestServerCancelOrder(t *testing.T) {
	srv, _ := newTestServer(true)
	ctx := context.Background()

	require.NoError(t, srv.CreateSymbol(ctx, engine.SymbolInput{
		Name: "XYZ", Base: "X", Quote: "Y",
		MinQuantity: decimal.NewFromInt(0), MaxQuantity: decimal.NewFromInt(1000),
	}))
	require.NoError(t, srv.PlaceOrder(ctx, engine.OrderInput{
		ID: "B1", Symbol: "XYZ", Side: engine.Buy, Type: engine.Limit, TIF: engine.GTC,
		Price: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(1),
	}))
	require.NoError(t, srv.CancelOrder(ctx, "XYZ", "B1"))
}

func TestServerCollectMetrics(t *testing.T) {
	srv, _ := newTestServer(true)
	ctx := context.Background()
	require.NoError(t, srv.CreateSymbol(ctx, engine.SymbolInput{
		Name: "XYZ", Base: "X", Quote: "Y",
		MinQuantity: decimal.NewFromInt(0), MaxQuantity: decimal.NewFromInt(1000),
	}))
	// Must not panic on an empty book.
	srv.CollectMetrics()
}

// TestRegisterMatchServiceServerDoesNotPanic guards against a ServiceDesc
// whose HandlerType isn't an interface: grpc.Server.RegisterService calls
// reflect.TypeOf(sd.HandlerType).Elem().Implements(...), which panics for a
// struct HandlerType instead of an interface one.
func TestRegisterMatchServiceServerDoesNotPanic(t *testing.T) {
	srv, _ := newTestServer(true)
	assert.NotPanics(t, func() {
		RegisterMatchServiceServer(grpc.NewServer(), srv)
	})
}
