package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// PositionView is the validator's view of one held symbol.
type PositionView struct {
	Held          decimal.Decimal
	BoughtInCycle decimal.Decimal
}

// AccountView is the validator's read-only view of an agent's book.
type AccountView interface {
	Cash() decimal.Decimal
	Position(symbol string) PositionView
}

// Detail carries the values behind a rejection so the decision loop can feed
// corrective context back to the capability.
type Detail struct {
	AttemptedQuantity decimal.Decimal `json:"attempted_quantity"`
	NearestLotBelow   decimal.Decimal `json:"nearest_lot_below,omitempty"`
	NearestLotAbove   decimal.Decimal `json:"nearest_lot_above,omitempty"`
	Sellable          decimal.Decimal `json:"sellable,omitempty"`
	PriorClose        decimal.Decimal `json:"prior_close,omitempty"`
	BandLow           decimal.Decimal `json:"band_low,omitempty"`
	BandHigh          decimal.Decimal `json:"band_high,omitempty"`
	RequiredCash      decimal.Decimal `json:"required_cash,omitempty"`
	AvailableCash     decimal.Decimal `json:"available_cash,omitempty"`
}

// Decision is the validator's verdict on one order. A rejected order never
// reaches the ledger; the reason and detail are surfaced as feedback.
type Decision struct {
	Accepted bool
	Reason   Reason
	Order    schema.Order
	Price    decimal.Decimal
	Fees     decimal.Decimal
	Detail   Detail
}

func (d Decision) String() string {
	if d.Accepted {
		return fmt.Sprintf("accept %s @ %s", d.Order, d.Price)
	}
	return fmt.Sprintf("reject %s: %s", d.Order, d.Reason)
}

// Validator applies MarketRules to proposed orders.
type Validator struct {
	rules    MarketRules
	registry *schema.Registry
}

// NewValidator creates a validator after checking the rules value.
func NewValidator(rules MarketRules, registry *schema.Registry) (*Validator, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || registry.Count() == 0 {
		return nil, fmt.Errorf("validator registry has no instruments")
	}
	return &Validator{rules: rules, registry: registry}, nil
}

// Rules returns the market rules in effect.
func (v *Validator) Rules() MarketRules {
	return v.rules
}

// Validate checks one order against the account and market rules.
// price is the execution price for the session; priorClose is the close of
// the previous session (zero when unknown, which skips the band check).
// Settlement state is the account's: the book rolls its bought-in-cycle
// counters when the trading day advances.
func (v *Validator) Validate(acct AccountView, order schema.Order, price, priorClose decimal.Decimal) Decision {
	decision := Decision{Order: order, Price: price}
	detail := &decision.Detail
	detail.AttemptedQuantity = order.Quantity

	if !order.Action.Valid() || order.Quantity.Sign() <= 0 {
		return decision.reject(ReasonInvalidQuantity)
	}
	if !v.rules.AllowFractional && !order.Quantity.Equal(order.Quantity.Truncate(0)) {
		return decision.reject(ReasonInvalidQuantity)
	}

	inst, ok := v.registry.Instrument(order.Symbol)
	if !ok {
		return decision.reject(ReasonUnknownSymbol)
	}

	pos := acct.Position(order.Symbol)

	if !v.lotOK(order, pos) {
		lot := decimal.NewFromInt(v.rules.LotSize)
		below := order.Quantity.Div(lot).Truncate(0).Mul(lot)
		detail.NearestLotBelow = below
		detail.NearestLotAbove = below.Add(lot)
		return decision.reject(ReasonLotSize)
	}

	if order.Action == schema.ActionSell {
		sellable := pos.Held
		if v.rules.SettlementSessions > 0 {
			sellable = sellable.Sub(pos.BoughtInCycle)
		}
		if order.Quantity.GreaterThan(sellable) {
			detail.Sellable = sellable
			return decision.reject(ReasonInsufficientPosition)
		}
	}

	if priorClose.Sign() > 0 {
		if band, ok := v.rules.Band(inst.Class); ok {
			low := priorClose.Mul(decimal.NewFromInt(1).Sub(band))
			high := priorClose.Mul(decimal.NewFromInt(1).Add(band))
			if price.LessThan(low) || price.GreaterThan(high) {
				detail.PriorClose = priorClose
				detail.BandLow = low
				detail.BandHigh = high
				return decision.reject(ReasonPriceBand)
			}
		}
	}

	notional := price.Mul(order.Quantity)
	if order.Action == schema.ActionBuy {
		fees := v.rules.Fees.BuyFees(notional)
		required := notional.Add(fees)
		if required.GreaterThan(acct.Cash()) {
			detail.RequiredCash = required
			detail.AvailableCash = acct.Cash()
			return decision.reject(ReasonInsufficientCash)
		}
		decision.Fees = fees
	} else {
		decision.Fees = v.rules.Fees.SellFees(notional)
	}

	decision.Accepted = true
	return decision
}

// lotOK enforces the lot-size multiple. Buys are strict; a sell may clear the
// full remaining position even when it is an odd lot.
func (v *Validator) lotOK(order schema.Order, pos PositionView) bool {
	if v.rules.LotSize <= 1 {
		return true
	}
	lot := decimal.NewFromInt(v.rules.LotSize)
	if order.Quantity.Mod(lot).IsZero() {
		return true
	}
	return order.Action == schema.ActionSell && order.Quantity.Equal(pos.Held)
}

func (d Decision) reject(reason Reason) Decision {
	d.Accepted = false
	d.Reason = reason
	return d
}
