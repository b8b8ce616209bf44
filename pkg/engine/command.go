package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/shopspring/decimal"
)

// CommandType tags the variant carried by a Command. It is the payload the
// server serialises into a proposal and the node loop hands to Apply.
type CommandType uint8

const (
	CmdPlaceOrder CommandType = iota
	CmdCancelOrder
	CmdCreateSymbol
	CmdUpdateSymbol
	CmdRemoveSymbol
)

// OrderInput is the wire shape of an order before it is assigned a
// deterministic timestamp by apply.
type OrderInput struct {
	ID       string
	Symbol   string
	Side     OrderSide
	Type     OrderType
	TIF      TimeInForce
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// SymbolInput is the wire shape of a symbol definition.
type SymbolInput struct {
	Name              string
	Base              string
	Quote             string
	PricePrecision    int32
	QuantityPrecision int32
	MinQuantity       decimal.Decimal
	MaxQuantity       decimal.Decimal
	MinNotional       decimal.Decimal
	MaxNotional       decimal.Decimal
}

// Command is the opaque payload carried by a Raft log entry. Which fields are
// populated depends on Type: Order for CmdPlaceOrder, Symbol for
// CmdCreateSymbol/CmdUpdateSymbol, CancelSymbol for CmdRemoveSymbol, and both
// CancelSymbol and CancelOrderID for CmdCancelOrder.
type Command struct {
	Type          CommandType
	Order         *OrderInput
	Symbol        *SymbolInput
	CancelSymbol  string
	CancelOrderID string
}

// Encode serialises a command deterministically for the Raft log.
func Encode(cmd *Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a command payload previously produced by Encode.
func Decode(data []byte) (*Command, error) {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return &cmd, nil
}
