// Package report summarizes a finished run from its journal: returns,
// drawdown, and per-trade outcomes, rendered as markdown for the run
// directory.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/oracle"
	"main/internal/schema"
)

// EquityPoint is the account value at one session.
type EquityPoint struct {
	Session time.Time
	Equity  decimal.Decimal
}

// Summary is the computed run report.
type Summary struct {
	Agent       string
	RunID       string
	InitialCash decimal.Decimal
	FinalCash   decimal.Decimal
	FinalEquity decimal.Decimal
	// TotalReturn is (final equity / initial cash) - 1.
	TotalReturn decimal.Decimal
	// MaxDrawdown is the largest peak-to-trough equity loss, as a fraction
	// of the peak.
	MaxDrawdown decimal.Decimal
	RealizedPnL decimal.Decimal
	// TotalFees is the cash lost to fees, derived per trade as the gap
	// between the cash delta and quantity times the executed entry price.
	TotalFees decimal.Decimal
	Trades    int
	Buys        int
	Sells       int
	Wins        int
	Losses      int
	Curve       []EquityPoint
}

// WinRate returns winning sells over total sells.
func (s Summary) WinRate() decimal.Decimal {
	if s.Sells == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(s.Sells)))
}

type holding struct {
	qty  decimal.Decimal
	cost decimal.Decimal
}

// Build computes a summary by walking the journal across the run's sessions
// and valuing open positions at each session's visible price.
func Build(agent, runID string, initialCash decimal.Decimal, txs []schema.Transaction, store *oracle.Store, sessions []time.Time) (Summary, error) {
	out := Summary{
		Agent:       agent,
		RunID:       runID,
		InitialCash: initialCash,
		FinalCash:   initialCash,
		FinalEquity: initialCash,
	}

	cash := initialCash
	holdings := make(map[string]*holding)
	next := 0

	peak := initialCash
	for _, session := range sessions {
		for next < len(txs) {
			ts, err := schema.ParseDate(txs[next].Date)
			if err != nil {
				return Summary{}, fmt.Errorf("journal record %d: %w", txs[next].SequenceID, err)
			}
			if ts.After(session) {
				break
			}
			cash = applyTransaction(&out, holdings, cash, txs[next], store)
			next++
		}

		equity := cash
		for symbol, h := range holdings {
			if h.qty.Sign() <= 0 {
				continue
			}
			price, ok := valuation(store, symbol, session)
			if !ok {
				// no visible price this session, carry cost
				equity = equity.Add(h.cost)
				continue
			}
			equity = equity.Add(h.qty.Mul(price))
		}
		out.Curve = append(out.Curve, EquityPoint{Session: session, Equity: equity})

		if equity.GreaterThan(peak) {
			peak = equity
		} else if peak.Sign() > 0 {
			drawdown := peak.Sub(equity).Div(peak)
			if drawdown.GreaterThan(out.MaxDrawdown) {
				out.MaxDrawdown = drawdown
			}
		}
	}

	// trailing records past the last session still count
	for ; next < len(txs); next++ {
		cash = applyTransaction(&out, holdings, cash, txs[next], store)
	}

	out.FinalCash = cash
	if len(out.Curve) > 0 {
		out.FinalEquity = out.Curve[len(out.Curve)-1].Equity
	} else {
		out.FinalEquity = cash
	}
	if initialCash.Sign() > 0 {
		out.TotalReturn = out.FinalEquity.Div(initialCash).Sub(decimal.NewFromInt(1))
	}
	return out, nil
}

// applyTransaction replays one journal record into the report's books,
// deriving the net cash move from the record's persisted cash balance.
func applyTransaction(out *Summary, holdings map[string]*holding, cash decimal.Decimal, tx schema.Transaction, store *oracle.Store) decimal.Decimal {
	newCash, ok := tx.Positions[schema.CashKey]
	if !ok {
		return cash
	}
	action := tx.ThisAction
	h := holdings[action.Symbol]
	if h == nil {
		h = &holding{}
		holdings[action.Symbol] = h
	}

	out.Trades++
	switch action.Action {
	case schema.ActionBuy:
		out.Buys++
		spent := cash.Sub(newCash)
		if fee, ok := tradeFee(store, tx, spent); ok {
			out.TotalFees = out.TotalFees.Add(fee)
		}
		h.qty = h.qty.Add(action.Amount)
		h.cost = h.cost.Add(spent)
	case schema.ActionSell:
		out.Sells++
		proceeds := newCash.Sub(cash)
		if fee, ok := tradeFee(store, tx, proceeds); ok {
			out.TotalFees = out.TotalFees.Add(fee)
		}
		var released decimal.Decimal
		if h.qty.Sign() > 0 {
			released = h.cost.Mul(action.Amount).Div(h.qty)
		}
		pnl := proceeds.Sub(released)
		out.RealizedPnL = out.RealizedPnL.Add(pnl)
		if pnl.Sign() > 0 {
			out.Wins++
		} else if pnl.Sign() < 0 {
			out.Losses++
		}
		h.qty = h.qty.Sub(action.Amount)
		h.cost = h.cost.Sub(released)
		if h.qty.Sign() <= 0 {
			h.cost = decimal.Zero
		}
	}
	return newCash
}

// tradeFee recovers the fee paid on one trade: the gap between the cash
// moved and quantity times the session's entry price. It needs the executed
// price to still be in the dataset; when it is not, the fee is unknowable
// from the journal alone and skipped.
func tradeFee(store *oracle.Store, tx schema.Transaction, cashMoved decimal.Decimal) (decimal.Decimal, bool) {
	ts, err := schema.ParseDate(tx.Date)
	if err != nil {
		return decimal.Zero, false
	}
	point, err := store.GetPrice(tx.ThisAction.Symbol, ts)
	if err != nil {
		return decimal.Zero, false
	}
	notional := tx.ThisAction.Amount.Mul(point.Entry)

	var fee decimal.Decimal
	if tx.ThisAction.Action == schema.ActionBuy {
		fee = cashMoved.Sub(notional)
	} else {
		fee = notional.Sub(cashMoved)
	}
	if fee.Sign() < 0 {
		return decimal.Zero, false
	}
	return fee, true
}

// valuation returns the symbol's marking price for a session: the close of
// a full candle, the entry at the frontier.
func valuation(store *oracle.Store, symbol string, session time.Time) (decimal.Decimal, bool) {
	point, err := store.GetPrice(symbol, session)
	if err == nil {
		if point.Candle != nil {
			return point.Candle.Close, true
		}
		return point.Entry, true
	}
	prior, err := store.PriorClose(symbol, session)
	if err != nil {
		return decimal.Zero, false
	}
	return prior, true
}

const pct = 100

// Markdown renders the summary for the run directory.
func (s Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run Report — %s\n\n", s.Agent)
	if s.RunID != "" {
		fmt.Fprintf(&b, "Run: `%s`\n\n", s.RunID)
	}
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Initial cash | %s |\n", s.InitialCash.StringFixed(2))
	fmt.Fprintf(&b, "| Final cash | %s |\n", s.FinalCash.StringFixed(2))
	fmt.Fprintf(&b, "| Final equity | %s |\n", s.FinalEquity.StringFixed(2))
	fmt.Fprintf(&b, "| Total return | %s%% |\n", s.TotalReturn.Mul(decimal.NewFromInt(pct)).StringFixed(2))
	fmt.Fprintf(&b, "| Max drawdown | %s%% |\n", s.MaxDrawdown.Mul(decimal.NewFromInt(pct)).StringFixed(2))
	fmt.Fprintf(&b, "| Realized PnL | %s |\n", s.RealizedPnL.StringFixed(2))
	fmt.Fprintf(&b, "| Total fees | %s |\n", s.TotalFees.StringFixed(2))
	fmt.Fprintf(&b, "| Trades | %d (%d buys / %d sells) |\n", s.Trades, s.Buys, s.Sells)
	fmt.Fprintf(&b, "| Win rate | %s%% (%d W / %d L) |\n", s.WinRate().Mul(decimal.NewFromInt(pct)).StringFixed(1), s.Wins, s.Losses)

	if len(s.Curve) > 0 {
		b.WriteString("\n## Equity curve\n\n| Session | Equity |\n|---|---|\n")
		for _, point := range s.Curve {
			fmt.Fprintf(&b, "| %s | %s |\n", schema.FormatDate(point.Session), point.Equity.StringFixed(2))
		}
	}
	return b.String()
}

// Write renders the report to <dir>/report-<agent>.md.
func Write(dir string, s Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("report-%s.md", s.Agent))
	if err := os.WriteFile(path, []byte(s.Markdown()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Sessions extracts the distinct, ordered session timestamps a journal
// touched, for reports built without the original calendar.
func Sessions(txs []schema.Transaction) []time.Time {
	seen := make(map[string]struct{})
	var out []time.Time
	for _, tx := range txs {
		if _, ok := seen[tx.Date]; ok {
			continue
		}
		seen[tx.Date] = struct{}{}
		ts, err := schema.ParseDate(tx.Date)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
