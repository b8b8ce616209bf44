package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// tradeNamespace seeds the deterministic trade-id derivation. Any fixed UUID
// works here; what matters is that every replica uses the same one.
var tradeNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ApplyContext carries the only sources of "environment" a replicated apply
// is allowed to observe: the committed log index (used as both a logical
// clock and an id seed) and a per-apply sequence counter so multiple trades
// produced by one command get distinct, reproducible ids.
type ApplyContext struct {
	Index uint64
	seq   uint64
}

// NextSeq returns the next sequence number within this apply and advances
// the counter. Used to keep generated ids unique when one command produces
// several trades.
func (c *ApplyContext) NextSeq() uint64 {
	s := c.seq
	c.seq++
	return s
}

// Now returns the deterministic logical timestamp for this apply: the
// committed log index. Using wall-clock time here would let replicas
// diverge, since Apply runs independently on every node.
func (c *ApplyContext) Now() int64 {
	return int64(c.Index)
}

func deterministicTradeID(symbol string, ctx *ApplyContext) string {
	seed := fmt.Sprintf("%s:%d:%d", symbol, ctx.Index, ctx.NextSeq())
	return uuid.NewMD5(tradeNamespace, []byte(seed)).String()
}

// Matcher owns exactly one symbol's book and applies price-time priority
// matching against it.
type Matcher struct {
	book *Book
}

// NewMatcher constructs a matcher over a fresh book for symbol.
func NewMatcher(symbol string) *Matcher {
	return &Matcher{book: NewBook(symbol)}
}

// Book exposes the underlying book for snapshot serialisation and tests.
func (m *Matcher) Book() *Book { return m.book }

// Place matches an incoming order against the book and, if any quantity
// remains and the order is a limit order, rests it. Market remainders are
// discarded (treated as executed-or-killed). Trades are returned in the
// order crossings occurred, which is required to be deterministic given
// (book, order) alone.
func (m *Matcher) Place(order *Order, ctx *ApplyContext) []*Trade {
	var trades []*Trade

	switch order.Type {
	case Market:
		trades = append(trades, m.matchMarket(order, ctx)...)
	case Limit:
		trades = append(trades, m.matchLimit(order, ctx)...)
	}

	if !order.IsFilled() && order.Type == Limit {
		m.book.Add(order)
	}

	return trades
}

// Cancel removes a resting order by id.
func (m *Matcher) Cancel(orderID string) (*Order, bool) {
	return m.book.Remove(orderID)
}

// opposite returns the book side an order of the given side crosses into.
func opposite(side OrderSide) OrderSide {
	if side == Buy {
		return Sell
	}
	return Buy
}

// matchMarket repeatedly takes the best opposing price level, matching the
// head (earliest-arrived) order at each level first, until the order is
// filled or the book side is exhausted. For a limit order it stops after one
// price level, leaving matchLimit to re-check the cross before the next.
func (m *Matcher) matchMarket(order *Order, ctx *ApplyContext) []*Trade {
	var trades []*Trade
	opp := opposite(order.Side)

	for !order.IsFilled() {
		bestPrice, ok := m.bestOpposing(opp)
		if !ok {
			break
		}
		if order.Type == Limit && len(trades) > 0 && !bestPrice.Equal(trades[len(trades)-1].Price) {
			break
		}

		maker := m.book.frontAt(opp, bestPrice)
		if maker == nil {
			break
		}

		qty := minDecimal(order.Remaining(), maker.Remaining())
		at := ctx.Now()
		tradeID := deterministicTradeID(order.Symbol, ctx)

		var buyerID, sellerID string
		if order.Side == Buy {
			buyerID, sellerID = order.ID, maker.ID
		} else {
			buyerID, sellerID = maker.ID, order.ID
		}

		trades = append(trades, &Trade{
			ID:            tradeID,
			Symbol:        order.Symbol,
			Price:         bestPrice,
			Quantity:      qty,
			BuyerOrderID:  buyerID,
			SellerOrderID: sellerID,
			CreatedAt:     at,
		})

		order.Fill(qty, at)
		maker.Fill(qty, at)

		if maker.IsFilled() {
			m.book.popFrontAt(opp, bestPrice)
		}
	}

	return trades
}

// matchLimit repeats the market-matching step while the resting best price
// still crosses the incoming limit price, one crossing price step at a time.
func (m *Matcher) matchLimit(order *Order, ctx *ApplyContext) []*Trade {
	var trades []*Trade

	for !order.IsFilled() {
		crosses := false
		if order.Side == Buy {
			if bestAsk, ok := m.book.BestAsk(); ok {
				crosses = order.Price.GreaterThanOrEqual(bestAsk)
			}
		} else {
			if bestBid, ok := m.book.BestBid(); ok {
				crosses = order.Price.LessThanOrEqual(bestBid)
			}
		}
		if !crosses {
			break
		}
		trades = append(trades, m.matchMarket(order, ctx)...)
	}

	return trades
}

func (m *Matcher) bestOpposing(side OrderSide) (decimal.Decimal, bool) {
	if side == Buy {
		return m.book.BestBid()
	}
	return m.book.BestAsk()
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
