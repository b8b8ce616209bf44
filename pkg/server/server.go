// Package server is the client-facing API: it turns PlaceOrder/CancelOrder/
// CreateSymbol/RemoveSymbol requests into engine.Command proposals, submits
// them to the local Raft node, and waits for them to commit before replying.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/spotmatch/pkg/engine"
	"github.com/cuemby/spotmatch/pkg/metrics"
	"github.com/cuemby/spotmatch/pkg/raftnode"

	"github.com/shopspring/decimal"
)

// proposer is the subset of *raftnode.Node the server depends on, so tests
// can substitute a fake.
type proposer interface {
	Propose(ctx context.Context, data []byte) bool
}

// Server implements the client-facing operations against a local node and
// its replicated symbol manager.
type Server struct {
	node    proposer
	manager *engine.Manager
}

// New builds a Server over node and manager. manager is read directly for
// queries (GetSymbol, order/book lookups); mutations always go through a
// Raft proposal first.
func New(node *raftnode.Node, manager *engine.Manager) *Server {
	return &Server{node: node, manager: manager}
}

var errNotCommitted = fmt.Errorf("proposal was not committed (not leader, or lost leadership)")

func (s *Server) propose(ctx context.Context, cmd *engine.Command) error {
	data, err := engine.Encode(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	timer := metrics.NewTimer()
	ok := s.node.Propose(ctx, data)
	timer.ObserveDuration(metrics.RaftProposalDuration)
	if !ok {
		return errNotCommitted
	}
	return nil
}

// PlaceOrder submits a new order for matching.
func (s *Server) PlaceOrder(ctx context.Context, in engine.OrderInput) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.APIRequestDuration, "place_order")
	}()

	cmd := &engine.Command{Type: engine.CmdPlaceOrder, Order: &in}
	if err := s.propose(ctx, cmd); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("place_order", "error").Inc()
		return err
	}
	metrics.APIRequestsTotal.WithLabelValues("place_order", "ok").Inc()
	metrics.OrdersPlacedTotal.WithLabelValues(in.Symbol, in.Side.String()).Inc()
	return nil
}

// CancelOrder requests cancellation of a resting order.
func (s *Server) CancelOrder(ctx context.Context, symbol, orderID string) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.APIRequestDuration, "cancel_order")
	}()

	cmd := &engine.Command{Type: engine.CmdCancelOrder, CancelSymbol: symbol, CancelOrderID: orderID}
	if err := s.propose(ctx, cmd); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("cancel_order", "error").Inc()
		return err
	}
	metrics.APIRequestsTotal.WithLabelValues("cancel_order", "ok").Inc()
	metrics.OrdersCancelledTotal.WithLabelValues(symbol).Inc()
	return nil
}

// CreateSymbol registers a new tradable symbol.
func (s *Server) CreateSymbol(ctx context.Context, in engine.SymbolInput) error {
	cmd := &engine.Command{Type: engine.CmdCreateSymbol, Symbol: &in}
	if err := s.propose(ctx, cmd); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("create_symbol", "error").Inc()
		return err
	}
	metrics.APIRequestsTotal.WithLabelValues("create_symbol", "ok").Inc()
	return nil
}

// UpdateSymbol replaces an existing symbol's configuration.
func (s *Server) UpdateSymbol(ctx context.Context, in engine.SymbolInput) error {
	cmd := &engine.Command{Type: engine.CmdUpdateSymbol, Symbol: &in}
	if err := s.propose(ctx, cmd); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("update_symbol", "error").Inc()
		return err
	}
	metrics.APIRequestsTotal.WithLabelValues("update_symbol", "ok").Inc()
	return nil
}

// RemoveSymbol delists a symbol.
func (s *Server) RemoveSymbol(ctx context.Context, symbol string) error {
	cmd := &engine.Command{Type: engine.CmdRemoveSymbol, CancelSymbol: symbol}
	if err := s.propose(ctx, cmd); err != nil {
		metrics.APIRequestsTotal.WithLabelValues("remove_symbol", "error").Inc()
		return err
	}
	metrics.APIRequestsTotal.WithLabelValues("remove_symbol", "ok").Inc()
	return nil
}

// GetSymbol is a read-only lookup, served directly from local state without
// a round-trip through Raft; callers needing linearizable reads should route
// through a no-op proposal first (not implemented here).
func (s *Server) GetSymbol(name string) (*engine.Symbol, bool) {
	sym, _, ok := s.manager.GetSymbolAndMatcher(name)
	return sym, ok
}

// BestPrices returns the current best bid/ask for a symbol, if it exists.
func (s *Server) BestPrices(name string) (bid, ask decimal.Decimal, ok bool) {
	_, matcher, found := s.manager.GetSymbolAndMatcher(name)
	if !found || matcher == nil {
		return decimal.Zero, decimal.Zero, false
	}
	bid, okBid := matcher.Book().BestBid()
	ask, okAsk := matcher.Book().BestAsk()
	return bid, ask, okBid && okAsk
}

// CollectMetrics publishes a point-in-time view of symbol/book state to
// Prometheus. Called periodically by a metrics.Collector.
func (s *Server) CollectMetrics() {
	syms := s.manager.ListSymbols()
	metrics.SymbolsActive.Set(0)
	active := 0
	for _, sym := range syms {
		if sym.Status == engine.SymbolActive {
			active++
		}
		_, matcher, ok := s.manager.GetSymbolAndMatcher(sym.Name)
		if !ok || matcher == nil {
			continue
		}
		metrics.BookDepth.WithLabelValues(sym.Name, "buy").Set(float64(matcher.Book().CountSide(engine.Buy)))
		metrics.BookDepth.WithLabelValues(sym.Name, "sell").Set(float64(matcher.Book().CountSide(engine.Sell)))
		if spread, ok := matcher.Book().Spread(); ok {
			f, _ := spread.Float64()
			metrics.BookSpread.WithLabelValues(sym.Name).Set(f)
		}
	}
	metrics.SymbolsActive.Set(float64(active))
}

// Timeout is a suggested deadline for a proposal's round trip. Server does
// not apply it: each operation waits for as long as the caller's context
// allows.
const Timeout = 5 * time.Second
