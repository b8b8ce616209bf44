package engine

import (
	"github.com/shopspring/decimal"
)

// OrderSide is which side of the book an order rests on or crosses into.
type OrderSide uint8

const (
	Buy OrderSide = iota
	Sell
)

func (s OrderSide) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderType distinguishes price-priority resting orders from immediate-execution orders.
type OrderType uint8

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Limit {
		return "limit"
	}
	return "market"
}

// TimeInForce is accepted on the wire but only GTC is enforced by the core.
type TimeInForce uint8

const (
	GTC TimeInForce = iota
	IOC
	FOK
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus uint8

const (
	StatusNew OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Order is a single resting or incoming instruction against a symbol's book.
//
// Identity fields never change after construction; Fill and Cancel mutate the
// trailing fields in place and are the only legal way to move status forward.
type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Type      OrderType
	TIF       TimeInForce
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	CreatedAt int64 // logical timestamp: the committing log index (see ApplyContext.Now)

	FilledQuantity decimal.Decimal
	Status         OrderStatus
	UpdatedAt      int64
}

// NewOrder constructs a fresh order in the New status. createdAt must come from
// a deterministic source (see ApplyContext.Now) so every replica
// produces byte-identical state.
func NewOrder(id, symbol string, side OrderSide, typ OrderType, tif TimeInForce, price, quantity decimal.Decimal, createdAt int64) *Order {
	return &Order{
		ID:             id,
		Symbol:         symbol,
		Side:           side,
		Type:           typ,
		TIF:            tif,
		Price:          price,
		Quantity:       quantity,
		CreatedAt:      createdAt,
		FilledQuantity: decimal.Zero,
		Status:         StatusNew,
		UpdatedAt:      createdAt,
	}
}

// Remaining returns the quantity yet to be filled.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsFilled reports whether the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.FilledQuantity.GreaterThanOrEqual(o.Quantity)
}

// IsTerminal reports whether the order's status can no longer change.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCancelled || o.Status == StatusRejected
}

// Fill records a crossed quantity and recomputes status, preserving the
// invariant status=filled <=> filled_quantity=quantity and
// status=partially_filled <=> 0<filled_quantity<quantity.
func (o *Order) Fill(quantity decimal.Decimal, at int64) {
	o.FilledQuantity = o.FilledQuantity.Add(quantity)
	if o.IsFilled() {
		o.Status = StatusFilled
	} else if o.FilledQuantity.GreaterThan(decimal.Zero) {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedAt = at
}

// Cancel marks the order terminal; a no-op if already terminal.
func (o *Order) Cancel(at int64) {
	if o.IsTerminal() {
		return
	}
	o.Status = StatusCancelled
	o.UpdatedAt = at
}
