package engine

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"

	spotlog "github.com/cuemby/spotmatch/pkg/log"
)

// Manager is the symbol manager and state machine (C5): it maps a symbol
// name to its config and matcher, dispatches decoded commands to the right
// one, and is the only thing a snapshot needs to capture to recover state.
//
// Manager is applied to by exactly one goroutine (the Raft node loop), so
// the lock below exists only to let read-mostly callers (metrics, tests)
// observe state concurrently; it is never contended on the hot apply path.
type Manager struct {
	mu       sync.RWMutex
	symbols  map[string]*Symbol
	matchers map[string]*Matcher
}

// NewManager constructs an empty symbol manager.
func NewManager() *Manager {
	return &Manager{
		symbols:  make(map[string]*Symbol),
		matchers: make(map[string]*Matcher),
	}
}

// AddSymbol registers a new symbol and its matcher. Fails if the name exists.
func (m *Manager) AddSymbol(s *Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.symbols[s.Name]; ok {
		return fmt.Errorf("symbol %s already exists", s.Name)
	}
	m.symbols[s.Name] = s
	m.matchers[s.Name] = NewMatcher(s.Name)
	return nil
}

// UpdateSymbol replaces a symbol's config in place; the matcher (and its
// book) is left untouched.
func (m *Manager) UpdateSymbol(s *Symbol) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.symbols[s.Name]; !ok {
		return fmt.Errorf("symbol %s does not exist", s.Name)
	}
	m.symbols[s.Name] = s
	return nil
}

// DelistSymbol marks a symbol delisted and drops its matcher; any resting
// orders it held become unreachable, per the source's behavior (see
// DESIGN.md open question on delisting with resting orders).
func (m *Manager) DelistSymbol(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.symbols[name]
	if !ok {
		return fmt.Errorf("symbol %s does not exist", name)
	}
	s.Status = SymbolDelisted
	delete(m.matchers, name)
	return nil
}

// GetSymbolAndMatcher returns the symbol config and its matcher, if present.
func (m *Manager) GetSymbolAndMatcher(name string) (*Symbol, *Matcher, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.symbols[name]
	if !ok {
		return nil, nil, false
	}
	matcher, ok := m.matchers[name]
	if !ok {
		return s, nil, false
	}
	return s, matcher, true
}

// ListSymbols returns every symbol, sorted by name for deterministic output.
func (m *Manager) ListSymbols() []*Symbol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Symbol, 0, len(m.symbols))
	for _, s := range m.symbols {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ApplyResult reports the outcome of one Apply call, for callers (metrics,
// tests) that want to observe what a committed entry actually did without
// changing the fact that apply itself never fails the commit.
type ApplyResult struct {
	Trades    []*Trade
	Cancelled *Order
	Err       error
}

// Apply decodes a committed log entry and routes it to the symbol manager
// or a matcher. Validation failures are logged but do not abort apply: the
// entry is still considered applied, matching the at-least-committed
// contract described for PlaceOrder/CancelOrder rejection.
func (m *Manager) Apply(index uint64, payload []byte) ApplyResult {
	cmd, err := Decode(payload)
	if err != nil {
		spotlog.WithComponent("engine").Error().Err(err).Uint64("index", index).Msg("decode command failed")
		return ApplyResult{Err: err}
	}

	ctx := &ApplyContext{Index: index}

	switch cmd.Type {
	case CmdPlaceOrder:
		return m.applyPlaceOrder(cmd.Order, ctx)
	case CmdCancelOrder:
		return m.applyCancelOrder(cmd.CancelSymbol, cmd.CancelOrderID, ctx)
	case CmdCreateSymbol:
		return m.applyCreateSymbol(cmd.Symbol, ctx)
	case CmdUpdateSymbol:
		return m.applyUpdateSymbol(cmd.Symbol, ctx)
	case CmdRemoveSymbol:
		return ApplyResult{Err: m.DelistSymbol(cmd.CancelSymbol)}
	default:
		err := fmt.Errorf("unknown command type %d", cmd.Type)
		spotlog.WithComponent("engine").Error().Uint64("index", index).Msg(err.Error())
		return ApplyResult{Err: err}
	}
}

func (m *Manager) applyPlaceOrder(in *OrderInput, ctx *ApplyContext) ApplyResult {
	if in == nil {
		return ApplyResult{Err: fmt.Errorf("place order: missing order")}
	}
	symbol, matcher, ok := m.GetSymbolAndMatcher(in.Symbol)
	if !ok || matcher == nil {
		err := fmt.Errorf("place order: unknown or delisted symbol %s", in.Symbol)
		spotlog.WithSymbol(in.Symbol).Warn().Msg(err.Error())
		return ApplyResult{Err: err}
	}

	order := NewOrder(in.ID, in.Symbol, in.Side, in.Type, in.TIF, in.Price, in.Quantity, ctx.Now())
	if err := symbol.Validate(order); err != nil {
		spotlog.WithSymbol(in.Symbol).Warn().Str("order_id", in.ID).Msg(err.Error())
		return ApplyResult{Err: err}
	}

	trades := matcher.Place(order, ctx)
	return ApplyResult{Trades: trades}
}

func (m *Manager) applyCancelOrder(symbolName, orderID string, ctx *ApplyContext) ApplyResult {
	symbol, matcher, ok := m.GetSymbolAndMatcher(symbolName)
	if !ok || matcher == nil {
		err := fmt.Errorf("cancel order: unknown or delisted symbol %s", symbolName)
		spotlog.WithSymbol(symbolName).Warn().Msg(err.Error())
		return ApplyResult{Err: err}
	}
	if symbol.Status != SymbolActive {
		err := fmt.Errorf("cancel order: symbol %s is not active", symbolName)
		spotlog.WithSymbol(symbolName).Warn().Msg(err.Error())
		return ApplyResult{Err: err}
	}
	order, found := matcher.Cancel(orderID)
	if !found {
		return ApplyResult{}
	}
	order.Cancel(ctx.Now())
	return ApplyResult{Cancelled: order}
}

func (m *Manager) applyCreateSymbol(in *SymbolInput, ctx *ApplyContext) ApplyResult {
	if in == nil {
		return ApplyResult{Err: fmt.Errorf("create symbol: missing symbol")}
	}
	s := NewSymbol(in.Name, in.Base, in.Quote, in.PricePrecision, in.QuantityPrecision,
		in.MinQuantity, in.MaxQuantity, in.MinNotional, in.MaxNotional, ctx.Now())
	if err := m.AddSymbol(s); err != nil {
		spotlog.WithSymbol(in.Name).Warn().Msg(err.Error())
		return ApplyResult{Err: err}
	}
	return ApplyResult{}
}

func (m *Manager) applyUpdateSymbol(in *SymbolInput, ctx *ApplyContext) ApplyResult {
	if in == nil {
		return ApplyResult{Err: fmt.Errorf("update symbol: missing symbol")}
	}
	s := NewSymbol(in.Name, in.Base, in.Quote, in.PricePrecision, in.QuantityPrecision,
		in.MinQuantity, in.MaxQuantity, in.MinNotional, in.MaxNotional, ctx.Now())
	if err := m.UpdateSymbol(s); err != nil {
		spotlog.WithSymbol(in.Name).Warn().Msg(err.Error())
		return ApplyResult{Err: err}
	}
	return ApplyResult{}
}

// snapshotState is the deterministic, fully-ordered encoding of Manager used
// by Snapshot/Restore. Map iteration is never used directly; every slice
// here is explicitly sorted by name first.
type snapshotState struct {
	Symbols []*Symbol
	Books   []symbolBook
}

type symbolBook struct {
	Symbol string
	Bids   []Level
	Asks   []Level
}

// Snapshot deterministically serialises the entire manager state: every
// symbol and, for symbols that still have a matcher, its book contents.
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := snapshotState{}
	names := make([]string, 0, len(m.symbols))
	for name := range m.symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state.Symbols = append(state.Symbols, m.symbols[name])
		if matcher, ok := m.matchers[name]; ok {
			state.Books = append(state.Books, symbolBook{
				Symbol: name,
				Bids:   matcher.Book().ExportSide(Buy),
				Asks:   matcher.Book().ExportSide(Sell),
			})
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&state); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Restore replaces the manager's entire state from a snapshot produced by
// Snapshot. lastIndex/lastTerm are the Raft metadata accompanying the
// snapshot; the engine itself has no use for them beyond logging.
func (m *Manager) Restore(lastIndex, lastTerm uint64, data []byte) error {
	var state snapshotState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	symbols := make(map[string]*Symbol, len(state.Symbols))
	for _, s := range state.Symbols {
		symbols[s.Name] = s
	}

	matchers := make(map[string]*Matcher, len(state.Books))
	for _, b := range state.Books {
		matcher := NewMatcher(b.Symbol)
		matcher.Book().ImportSide(Buy, b.Bids)
		matcher.Book().ImportSide(Sell, b.Asks)
		matchers[b.Symbol] = matcher
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = symbols
	m.matchers = matchers

	spotlog.WithComponent("engine").Info().
		Uint64("last_index", lastIndex).
		Uint64("last_term", lastTerm).
		Int("symbols", len(symbols)).
		Msg("restored snapshot")
	return nil
}
