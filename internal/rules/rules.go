package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Reason is a machine-readable rejection code surfaced to the decision loop.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonInvalidQuantity      Reason = "invalid_quantity"
	ReasonLotSize              Reason = "lot_size"
	ReasonUnknownSymbol        Reason = "unknown_symbol"
	ReasonInsufficientCash     Reason = "insufficient_cash"
	ReasonInsufficientPosition Reason = "insufficient_position"
	ReasonPriceBand            Reason = "price_band"
)

// MarketRules parameterizes order acceptance for one market. There is no
// per-market subtype: an A-share daily run and a fractional crypto run differ
// only in this value.
type MarketRules struct {
	// LotSize is the minimum tradable unit multiple; 1 disables the check.
	LotSize int64
	// SettlementSessions delays resale of bought shares by N sessions.
	// 0 allows same-session sells, 1 is T+1.
	SettlementSessions int
	// AllowFractional permits non-integral quantities.
	AllowFractional bool
	// Bands maps instrument class to the max deviation from prior close.
	Bands map[schema.InstrumentClass]decimal.Decimal
	// Fees is the per-trade fee schedule.
	Fees FeeSchedule
}

// Validate checks the rules value at construction time.
func (r MarketRules) Validate() error {
	if r.LotSize < 1 {
		return fmt.Errorf("invalid market rules: LotSize must be >= 1")
	}
	if r.SettlementSessions < 0 {
		return fmt.Errorf("invalid market rules: SettlementSessions must be >= 0")
	}
	for class, band := range r.Bands {
		if !class.Valid() {
			return fmt.Errorf("invalid market rules: unknown instrument class %q", class)
		}
		if band.IsNegative() {
			return fmt.Errorf("invalid market rules: band for %s must be >= 0", class)
		}
	}
	return r.Fees.Validate()
}

// Band returns the price-limit band for an instrument class. Classes without
// an explicit band fall back to the ordinary band; no band configured at all
// disables the check.
func (r MarketRules) Band(class schema.InstrumentClass) (decimal.Decimal, bool) {
	if band, ok := r.Bands[class]; ok {
		return band, true
	}
	if band, ok := r.Bands[schema.ClassOrdinary]; ok {
		return band, true
	}
	return decimal.Zero, false
}

// FeeSchedule defines per-trade costs. All rates apply to the trade notional
// and each resulting fee is truncated to the cent. Zero values disable the
// corresponding fee.
type FeeSchedule struct {
	// CommissionRate applies to both sides.
	CommissionRate decimal.Decimal
	// MinCommission floors a non-zero commission.
	MinCommission decimal.Decimal
	// StampTaxRate applies to sells only.
	StampTaxRate decimal.Decimal
	// TransferFeeRate applies to both sides.
	TransferFeeRate decimal.Decimal
}

// Validate checks the fee schedule.
func (f FeeSchedule) Validate() error {
	for _, rate := range []decimal.Decimal{f.CommissionRate, f.MinCommission, f.StampTaxRate, f.TransferFeeRate} {
		if rate.IsNegative() {
			return fmt.Errorf("invalid fee schedule: rates must be >= 0")
		}
	}
	return nil
}

// BuyFees returns total fees for a buy of the given notional.
func (f FeeSchedule) BuyFees(notional decimal.Decimal) decimal.Decimal {
	return f.commission(notional).Add(f.truncated(notional, f.TransferFeeRate))
}

// SellFees returns total fees for a sell of the given notional.
func (f FeeSchedule) SellFees(notional decimal.Decimal) decimal.Decimal {
	return f.commission(notional).
		Add(f.truncated(notional, f.StampTaxRate)).
		Add(f.truncated(notional, f.TransferFeeRate))
}

func (f FeeSchedule) commission(notional decimal.Decimal) decimal.Decimal {
	if f.CommissionRate.IsZero() {
		return decimal.Zero
	}
	fee := f.truncated(notional, f.CommissionRate)
	if fee.LessThan(f.MinCommission) {
		return f.MinCommission
	}
	return fee
}

func (f FeeSchedule) truncated(notional, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return notional.Mul(rate).Truncate(2)
}
