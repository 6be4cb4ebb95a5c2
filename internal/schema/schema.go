package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActionType is the side of an order as it appears in persisted records.
type ActionType string

const (
	ActionBuy  ActionType = "buy"
	ActionSell ActionType = "sell"
)

// Valid reports whether the action is a known side.
func (a ActionType) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Order is a proposed trade produced by the reasoning capability.
// It is transient: the validator and ledger consume it within one step.
type Order struct {
	Symbol   string
	Action   ActionType
	Quantity decimal.Decimal
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s x%s", o.Action, o.Symbol, o.Quantity)
}

// TradeAction is the order portion of a persisted transaction.
type TradeAction struct {
	Action ActionType      `json:"action"`
	Symbol string          `json:"symbol"`
	Amount decimal.Decimal `json:"amount"`
}

// CashKey is the reserved positions key holding the cash balance.
const CashKey = "CASH"

// Transaction is one accepted order as appended to the ledger journal.
// Records are append-only and never mutated; Positions holds the full
// post-trade position map including CashKey.
type Transaction struct {
	Date       string                     `json:"date"`
	SequenceID uint64                     `json:"sequence_id"`
	ThisAction TradeAction                `json:"this_action"`
	Positions  map[string]decimal.Decimal `json:"positions"`
}

// DateLayout is the timestamp format used in persisted ledger records.
const DateLayout = "2006-01-02 15:04"

// FormatDate renders a session timestamp for persisted records.
func FormatDate(ts time.Time) string {
	return ts.UTC().Format(DateLayout)
}

// ParseDate parses a persisted record timestamp.
func ParseDate(s string) (time.Time, error) {
	ts, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse record date %q: %w", s, err)
	}
	return ts.UTC(), nil
}

// TradingDay truncates a session timestamp to its trading day.
// Settlement cycles are keyed by trading day regardless of granularity:
// four intraday sessions on one day share one cycle.
func TradingDay(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AuditType categorizes records in the decision/audit log.
type AuditType string

const (
	AuditMarketAnalysis AuditType = "market_analysis"
	AuditDecision       AuditType = "decision"
	AuditTrade          AuditType = "trade"
	AuditResearch       AuditType = "research"
)

// AuditRecord is one line of the decision/audit log consumed by the
// dashboard. Payload must marshal to a single JSON value.
type AuditRecord struct {
	Type      AuditType `json:"type"`
	Timestamp string    `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Summary   string    `json:"summary"`
	Payload   any       `json:"payload,omitempty"`
}
