package strategy

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"main/internal/indicators"
	"main/internal/oracle"
	"main/internal/schema"
)

// TechnicalConfig tunes the rule-based technical provider.
type TechnicalConfig struct {
	// Lookback is how many sessions of history feed the indicators.
	Lookback int `json:"lookback"`
	// RSIPeriod, oversold/overbought thresholds.
	RSIPeriod     int     `json:"rsi_period"`
	RSIOversold   float64 `json:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought"`
	// LotSize aligns buy quantities.
	LotSize int64 `json:"lot_size"`
	// MaxPositionFrac caps one buy at this fraction of cash.
	MaxPositionFrac float64 `json:"max_position_frac"`
}

func (c TechnicalConfig) withDefaults() TechnicalConfig {
	if c.Lookback <= 0 {
		c.Lookback = 60
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.RSIOversold <= 0 {
		c.RSIOversold = 30
	}
	if c.RSIOverbought <= 0 {
		c.RSIOverbought = 70
	}
	if c.LotSize <= 0 {
		c.LotSize = 100
	}
	if c.MaxPositionFrac <= 0 || c.MaxPositionFrac > 1 {
		c.MaxPositionFrac = 0.2
	}
	return c
}

// Technical is a deterministic rule-based provider: buy oversold symbols
// with a bullish MACD histogram, sell overbought holdings. It stands in for
// a model-backed agent in offline simulations and gives the indicator
// pipeline a live consumer.
type Technical struct {
	name string
	cfg  TechnicalConfig
}

// NewTechnical builds the provider.
func NewTechnical(name string, cfg TechnicalConfig) *Technical {
	if name == "" {
		name = "technical"
	}
	return &Technical{name: name, cfg: cfg.withDefaults()}
}

// Name implements Provider.
func (t *Technical) Name() string {
	return t.name
}

// Propose implements Provider.
func (t *Technical) Propose(_ context.Context, sc Context) (Proposal, error) {
	if len(sc.Feedback) > 0 {
		// one shot per step; a rejection means the signal does not fit the
		// rules today
		return Proposal{Summary: "order rejected, holding"}, nil
	}

	held := make(map[string]decimal.Decimal, len(sc.Portfolio.Positions))
	for _, pos := range sc.Portfolio.Positions {
		if pos.Qty.Sign() > 0 {
			held[pos.Symbol] = pos.Qty
		}
	}

	var orders []schema.Order
	var notes []string
	var research []string
	for _, symbol := range sc.Market.Symbols() {
		signal, ok := t.evaluate(sc.Market, symbol)
		if !ok {
			continue
		}
		research = append(research, fmt.Sprintf("%s: entry %s, rsi %.1f, macd hist %.3f", symbol, signal.entry, signal.rsi, signal.hist))
		switch {
		case signal.sell && held[symbol].Sign() > 0:
			orders = append(orders, schema.Order{
				Symbol:   symbol,
				Action:   schema.ActionSell,
				Quantity: held[symbol],
			})
			notes = append(notes, fmt.Sprintf("%s: rsi %.1f overbought, exiting", symbol, signal.rsi))
		case signal.buy && held[symbol].Sign() == 0:
			qty := t.buyQuantity(sc.Portfolio.Cash, signal.entry)
			if qty.Sign() <= 0 {
				continue
			}
			orders = append(orders, schema.Order{
				Symbol:   symbol,
				Action:   schema.ActionBuy,
				Quantity: qty,
			})
			notes = append(notes, fmt.Sprintf("%s: rsi %.1f oversold, macd hist %.3f, entering", symbol, signal.rsi, signal.hist))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].Symbol < orders[j].Symbol })

	summary := "no signal"
	if len(notes) > 0 {
		summary = notes[0]
		for _, n := range notes[1:] {
			summary += "; " + n
		}
	}
	return Proposal{Orders: orders, Summary: summary, Research: research}, nil
}

type techSignal struct {
	buy   bool
	sell  bool
	rsi   float64
	hist  float64
	entry decimal.Decimal
}

func (t *Technical) evaluate(market *oracle.View, symbol string) (techSignal, bool) {
	history, err := market.History(symbol, t.cfg.Lookback)
	if err != nil || len(history) <= t.cfg.RSIPeriod {
		return techSignal{}, false
	}
	point := history[len(history)-1]
	if !point.Timestamp.Equal(market.AsOf()) {
		// symbol has no record at this session
		return techSignal{}, false
	}

	closes := make([]float64, 0, len(history))
	for _, p := range history {
		if p.Candle != nil {
			closes = append(closes, p.Candle.Close.InexactFloat64())
		}
	}
	if len(closes) <= t.cfg.RSIPeriod {
		return techSignal{}, false
	}

	rsi := indicators.Last(indicators.RSI(closes, t.cfg.RSIPeriod))
	macd := indicators.MACD(closes, 12, 26, 9)
	hist := macd.Histogram[len(macd.Histogram)-1]
	if math.IsNaN(rsi) {
		return techSignal{}, false
	}
	return techSignal{
		buy:   rsi < t.cfg.RSIOversold && hist > 0,
		sell:  rsi > t.cfg.RSIOverbought,
		rsi:   rsi,
		hist:  hist,
		entry: point.Entry,
	}, true
}

func (t *Technical) buyQuantity(cash, price decimal.Decimal) decimal.Decimal {
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	lot := decimal.NewFromInt(t.cfg.LotSize)
	budget := cash.Mul(decimal.NewFromFloat(t.cfg.MaxPositionFrac))
	lots := budget.Div(price.Mul(lot)).Floor()
	return lots.Mul(lot)
}
