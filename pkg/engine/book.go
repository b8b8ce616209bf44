package engine

import (
	"container/list"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// priceLevel is one price point on a ladder: a FIFO of resting orders in
// arrival order, so time priority within a price is "earliest at the front".
type priceLevel struct {
	price  decimal.Decimal
	orders *list.List // *Order
}

func lessLevel(a, b *priceLevel) bool {
	return a.price.LessThan(b.price)
}

// Book is the per-symbol two-sided price-time priority ladder. bids and asks
// are kept in separate B-trees keyed by price for O(log P) best-price
// lookup; byID gives O(1) lookup/removal by order id.
type Book struct {
	Symbol string
	bids   *btree.BTreeG[*priceLevel] // highest price = best bid
	asks   *btree.BTreeG[*priceLevel] // lowest price = best ask

	byID map[string]*entryRef
}

type entryRef struct {
	order *Order
	side  OrderSide
	elem  *list.Element // position within its price level's FIFO
}

// NewBook constructs an empty book for symbol.
func NewBook(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   btree.NewG(32, lessLevel),
		asks:   btree.NewG(32, lessLevel),
		byID:   make(map[string]*entryRef),
	}
}

func (b *Book) ladder(side OrderSide) *btree.BTreeG[*priceLevel] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// Add inserts order into the book at its price, preserving arrival order
// within the level.
func (b *Book) Add(order *Order) {
	ladder := b.ladder(order.Side)
	key := &priceLevel{price: order.Price}
	level, ok := ladder.Get(key)
	if !ok {
		level = &priceLevel{price: order.Price, orders: list.New()}
		ladder.ReplaceOrInsert(level)
	}
	elem := level.orders.PushBack(order)
	b.byID[order.ID] = &entryRef{order: order, side: order.Side, elem: elem}
}

// Remove removes an order by id, deleting its price level if it empties.
// Returns (order, true) if found, else (nil, false).
func (b *Book) Remove(orderID string) (*Order, bool) {
	ref, ok := b.byID[orderID]
	if !ok {
		return nil, false
	}
	delete(b.byID, orderID)

	ladder := b.ladder(ref.side)
	key := &priceLevel{price: ref.order.Price}
	level, ok := ladder.Get(key)
	if !ok {
		return ref.order, true
	}
	level.orders.Remove(ref.elem)
	if level.orders.Len() == 0 {
		ladder.Delete(key)
	}
	return ref.order, true
}

// Get looks up a resting order by id without removing it.
func (b *Book) Get(orderID string) (*Order, bool) {
	ref, ok := b.byID[orderID]
	if !ok {
		return nil, false
	}
	return ref.order, true
}

// BestBid returns the highest resting buy price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	level, ok := b.bids.Max()
	if !ok {
		return decimal.Zero, false
	}
	return level.price, true
}

// BestAsk returns the lowest resting sell price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	level, ok := b.asks.Min()
	if !ok {
		return decimal.Zero, false
	}
	return level.price, true
}

// Spread returns best_ask - best_bid, if both sides are non-empty.
func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// frontAt returns the first (oldest) order resting at the given price on
// side, without removing it, or nil if the level is empty/absent.
func (b *Book) frontAt(side OrderSide, price decimal.Decimal) *Order {
	ladder := b.ladder(side)
	level, ok := ladder.Get(&priceLevel{price: price})
	if !ok || level.orders.Len() == 0 {
		return nil
	}
	return level.orders.Front().Value.(*Order)
}

// popFrontAt removes and returns the first order resting at price on side,
// deleting the level if it empties. Also removes the order from byID.
func (b *Book) popFrontAt(side OrderSide, price decimal.Decimal) *Order {
	ladder := b.ladder(side)
	key := &priceLevel{price: price}
	level, ok := ladder.Get(key)
	if !ok || level.orders.Len() == 0 {
		return nil
	}
	elem := level.orders.Front()
	order := elem.Value.(*Order)
	level.orders.Remove(elem)
	delete(b.byID, order.ID)
	if level.orders.Len() == 0 {
		ladder.Delete(key)
	}
	return order
}

// Count returns the number of resting orders, for invariant checks.
func (b *Book) Count() int {
	return len(b.byID)
}

// CountSide returns the number of resting orders on one side, for metrics.
func (b *Book) CountSide(side OrderSide) int {
	count := 0
	for _, ref := range b.byID {
		if ref.side == side {
			count++
		}
	}
	return count
}

// Level is a snapshot-friendly view of one price level, orders in arrival order.
type Level struct {
	Price  decimal.Decimal
	Orders []*Order
}

// ExportSide returns every price level on side, in ascending price order, so
// that re-importing it is independent of btree iteration internals.
func (b *Book) ExportSide(side OrderSide) []Level {
	var levels []Level
	b.ladder(side).Ascend(func(l *priceLevel) bool {
		orders := make([]*Order, 0, l.orders.Len())
		for e := l.orders.Front(); e != nil; e = e.Next() {
			orders = append(orders, e.Value.(*Order))
		}
		levels = append(levels, Level{Price: l.price, Orders: orders})
		return true
	})
	return levels
}

// ImportSide rebuilds one side of the book from an exported snapshot. The
// book side must be empty before calling.
func (b *Book) ImportSide(side OrderSide, levels []Level) {
	ladder := b.ladder(side)
	for _, lvl := range levels {
		level := &priceLevel{price: lvl.Price, orders: list.New()}
		for _, o := range lvl.Orders {
			elem := level.orders.PushBack(o)
			b.byID[o.ID] = &entryRef{order: o, side: side, elem: elem}
		}
		ladder.ReplaceOrInsert(level)
	}
}
