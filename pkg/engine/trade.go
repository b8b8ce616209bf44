package engine

import (
	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one crossing. It is emitted whenever a
// unit of quantity changes hands at the resting (maker) order's price.
type Trade struct {
	ID            string
	Symbol        string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	BuyerOrderID  string
	SellerOrderID string
	CreatedAt     int64
}
