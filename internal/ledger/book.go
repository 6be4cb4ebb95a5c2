package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/rules"
	"main/internal/schema"
)

// Position is one held symbol with its cost basis and settlement state.
type Position struct {
	Qty decimal.Decimal
	// Cost is the total net cash outlay behind Qty (fees included).
	Cost decimal.Decimal
	// BoughtInCycle counts shares bought during CycleDay; with T+1 rules they
	// are not sellable until the next trading day.
	BoughtInCycle decimal.Decimal
	CycleDay      time.Time
}

// Book is the in-memory cash/position state of one agent. It is not
// goroutine safe: the owning ledger serializes access under its lock.
type Book struct {
	cash      decimal.Decimal
	positions map[string]*Position
}

// NewBook creates a book holding only cash.
func NewBook(initialCash decimal.Decimal) *Book {
	return &Book{cash: initialCash, positions: make(map[string]*Position)}
}

// Cash returns the current cash balance.
func (b *Book) Cash() decimal.Decimal {
	return b.cash
}

// Position returns the validator's view of one symbol.
func (b *Book) Position(symbol string) rules.PositionView {
	pos, ok := b.positions[symbol]
	if !ok {
		return rules.PositionView{Held: decimal.Zero, BoughtInCycle: decimal.Zero}
	}
	return rules.PositionView{Held: pos.Qty, BoughtInCycle: pos.BoughtInCycle}
}

// Roll advances the settlement cycle to the session's trading day, clearing
// bought-in-cycle counters from earlier days.
func (b *Book) Roll(session time.Time) {
	day := schema.TradingDay(session)
	for _, pos := range b.positions {
		if !pos.CycleDay.Equal(day) {
			pos.BoughtInCycle = decimal.Zero
			pos.CycleDay = day
		}
	}
}

// Clone returns a deep copy of the book.
func (b *Book) Clone() *Book {
	out := &Book{cash: b.cash, positions: make(map[string]*Position, len(b.positions))}
	for symbol, pos := range b.positions {
		cp := *pos
		out.positions[symbol] = &cp
	}
	return out
}

// Trade mutates the book with one validator-accepted order. qty and price
// are positive; fees reduce cash on both sides.
func (b *Book) Trade(action schema.ActionType, symbol string, qty, price, fees decimal.Decimal, session time.Time) {
	notional := price.Mul(qty)
	if action == schema.ActionBuy {
		b.applyCashDelta(action, symbol, qty, notional.Add(fees), session)
	} else {
		b.applyCashDelta(action, symbol, qty, notional.Sub(fees), session)
	}
}

// applyCashDelta is the single mutation path shared by live trades and
// journal replay. netAmount is total cash out for buys, net cash in for
// sells; replay derives it from consecutive journal records, which keeps
// reconstruction a pure function of the log.
func (b *Book) applyCashDelta(action schema.ActionType, symbol string, qty, netAmount decimal.Decimal, session time.Time) {
	day := schema.TradingDay(session)

	pos, ok := b.positions[symbol]
	if !ok {
		pos = &Position{CycleDay: day}
		b.positions[symbol] = pos
	}
	if !pos.CycleDay.Equal(day) {
		pos.BoughtInCycle = decimal.Zero
		pos.CycleDay = day
	}

	switch action {
	case schema.ActionBuy:
		b.cash = b.cash.Sub(netAmount)
		pos.Qty = pos.Qty.Add(qty)
		pos.Cost = pos.Cost.Add(netAmount)
		pos.BoughtInCycle = pos.BoughtInCycle.Add(qty)
	case schema.ActionSell:
		b.cash = b.cash.Add(netAmount)
		if pos.Qty.Sign() > 0 {
			released := pos.Cost.Mul(qty).Div(pos.Qty)
			pos.Cost = pos.Cost.Sub(released)
		}
		pos.Qty = pos.Qty.Sub(qty)
		if pos.Qty.IsZero() {
			pos.Cost = decimal.Zero
		}
	}
}

// PositionsMap renders the persisted positions map: every symbol the agent
// has ever traded (a sold-out symbol stays at zero) plus the cash balance
// under schema.CashKey.
func (b *Book) PositionsMap() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b.positions)+1)
	for symbol, pos := range b.positions {
		out[symbol] = pos.Qty
	}
	out[schema.CashKey] = b.cash
	return out
}

// Symbols returns held symbols in sorted order.
func (b *Book) Symbols() []string {
	out := make([]string, 0, len(b.positions))
	for symbol, pos := range b.positions {
		if pos.Qty.Sign() > 0 {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}
