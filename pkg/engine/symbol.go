package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolStatus is the trading lifecycle of a symbol. Only Active symbols
// accept placements and cancels.
type SymbolStatus uint8

const (
	SymbolActive SymbolStatus = iota
	SymbolInactive
	SymbolDelisted
)

func (s SymbolStatus) String() string {
	switch s {
	case SymbolActive:
		return "active"
	case SymbolInactive:
		return "inactive"
	case SymbolDelisted:
		return "delisted"
	default:
		return "unknown"
	}
}

// Symbol carries the pair metadata, decimal precision, and trading bounds
// that gate every placement against a book.
type Symbol struct {
	Name              string
	Base              string
	Quote             string
	PricePrecision    int32
	QuantityPrecision int32
	MinQuantity       decimal.Decimal
	MaxQuantity       decimal.Decimal
	MinNotional       decimal.Decimal
	MaxNotional       decimal.Decimal
	Status            SymbolStatus
	CreatedAt         int64
	UpdatedAt         int64
}

// NewSymbol constructs an Active symbol.
func NewSymbol(name, base, quote string, pricePrecision, qtyPrecision int32, minQty, maxQty, minNotional, maxNotional decimal.Decimal, at int64) *Symbol {
	return &Symbol{
		Name:              name,
		Base:              base,
		Quote:             quote,
		PricePrecision:    pricePrecision,
		QuantityPrecision: qtyPrecision,
		MinQuantity:       minQty,
		MaxQuantity:       maxQty,
		MinNotional:       minNotional,
		MaxNotional:       maxNotional,
		Status:            SymbolActive,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

// ValidateQuantity reports whether a quantity falls within the symbol's bounds.
func (s *Symbol) ValidateQuantity(qty decimal.Decimal) bool {
	return qty.GreaterThanOrEqual(s.MinQuantity) && qty.LessThanOrEqual(s.MaxQuantity)
}

// ValidateNotional reports whether price*quantity falls within the symbol's
// notional bounds. A zero MaxNotional means "no upper bound".
func (s *Symbol) ValidateNotional(price, qty decimal.Decimal) bool {
	notional := price.Mul(qty)
	if notional.LessThan(s.MinNotional) {
		return false
	}
	if s.MaxNotional.GreaterThan(decimal.Zero) && notional.GreaterThan(s.MaxNotional) {
		return false
	}
	return true
}

// RoundPrice rounds a price to the symbol's configured decimal places.
func (s *Symbol) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return price.Round(s.PricePrecision)
}

// RoundQuantity rounds a quantity to the symbol's configured decimal places.
func (s *Symbol) RoundQuantity(qty decimal.Decimal) decimal.Decimal {
	return qty.Round(s.QuantityPrecision)
}

// Validate checks an incoming order's price/quantity against the symbol's
// bounds, returning a descriptive error when a placement must be rejected.
func (s *Symbol) Validate(order *Order) error {
	if s.Status != SymbolActive {
		return fmt.Errorf("symbol %s is not active", s.Name)
	}
	if !s.ValidateQuantity(order.Quantity) {
		return fmt.Errorf("quantity %s outside bounds [%s,%s] for symbol %s", order.Quantity, s.MinQuantity, s.MaxQuantity, s.Name)
	}
	if order.Type == Limit {
		if !s.ValidateNotional(order.Price, order.Quantity) {
			return fmt.Errorf("notional outside bounds for symbol %s", s.Name)
		}
	}
	return nil
}
