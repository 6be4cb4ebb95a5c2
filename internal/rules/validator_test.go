package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

type fakeAccount struct {
	cash      decimal.Decimal
	positions map[string]PositionView
}

func (a fakeAccount) Cash() decimal.Decimal {
	return a.cash
}

func (a fakeAccount) Position(symbol string) PositionView {
	return a.positions[symbol]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Add(schema.Instrument{Symbol: "600519", Name: "Kweichow Moutai", Class: schema.ClassOrdinary}))
	require.NoError(t, reg.Add(schema.Instrument{Symbol: "300750", Name: "CATL", Class: schema.ClassGrowth}))
	return reg
}

func testValidator(t *testing.T, rules MarketRules) *Validator {
	t.Helper()
	v, err := NewValidator(rules, testRegistry(t))
	require.NoError(t, err)
	return v
}

func aShareRules() MarketRules {
	return MarketRules{
		LotSize:            100,
		SettlementSessions: 1,
		Bands: map[schema.InstrumentClass]decimal.Decimal{
			schema.ClassOrdinary: dec("0.1"),
			schema.ClassGrowth:   dec("0.2"),
		},
	}
}

func TestValidateLotSizeLaw(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("1000000")}

	for _, qty := range []string{"100", "200", "1500", "99900"} {
		order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec(qty)}
		d := v.Validate(acct, order, dec("10"), dec("10"))
		assert.Truef(t, d.Accepted, "qty %s should pass the lot check", qty)
	}
	for _, qty := range []string{"1", "50", "150", "199", "101"} {
		order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec(qty)}
		d := v.Validate(acct, order, dec("10"), dec("10"))
		require.Falsef(t, d.Accepted, "qty %s should fail the lot check", qty)
		assert.Equal(t, ReasonLotSize, d.Reason)
	}
}

func TestValidateLotSizeDetail(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("1000000")}

	order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec("150")}
	d := v.Validate(acct, order, dec("10"), dec("10"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonLotSize, d.Reason)
	assert.True(t, d.Detail.NearestLotBelow.Equal(dec("100")))
	assert.True(t, d.Detail.NearestLotAbove.Equal(dec("200")))
}

func TestValidateSellClearsOddLot(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{
		cash: decimal.Zero,
		positions: map[string]PositionView{
			"600519": {Held: dec("133")},
		},
	}

	full := schema.Order{Symbol: "600519", Action: schema.ActionSell, Quantity: dec("133")}
	assert.True(t, v.Validate(acct, full, dec("10"), dec("10")).Accepted)

	partial := schema.Order{Symbol: "600519", Action: schema.ActionSell, Quantity: dec("33")}
	d := v.Validate(acct, partial, dec("10"), dec("10"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonLotSize, d.Reason)
}

func TestValidateSettlementLaw(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{
		cash: decimal.Zero,
		positions: map[string]PositionView{
			"600519": {Held: dec("300"), BoughtInCycle: dec("200")},
		},
	}

	ok := schema.Order{Symbol: "600519", Action: schema.ActionSell, Quantity: dec("100")}
	assert.True(t, v.Validate(acct, ok, dec("10"), dec("10")).Accepted)

	tooMuch := schema.Order{Symbol: "600519", Action: schema.ActionSell, Quantity: dec("200")}
	d := v.Validate(acct, tooMuch, dec("10"), dec("10"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonInsufficientPosition, d.Reason)
	assert.True(t, d.Detail.Sellable.Equal(dec("100")))
}

func TestValidateSettlementDisabled(t *testing.T) {
	rules := aShareRules()
	rules.SettlementSessions = 0
	v := testValidator(t, rules)
	acct := fakeAccount{
		positions: map[string]PositionView{
			"600519": {Held: dec("200"), BoughtInCycle: dec("200")},
		},
	}

	order := schema.Order{Symbol: "600519", Action: schema.ActionSell, Quantity: dec("200")}
	assert.True(t, v.Validate(acct, order, dec("10"), dec("10")).Accepted)
}

func TestValidatePriceBand(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("1000000")}
	order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec("100")}

	assert.True(t, v.Validate(acct, order, dec("11"), dec("10")).Accepted)
	assert.True(t, v.Validate(acct, order, dec("9"), dec("10")).Accepted)

	d := v.Validate(acct, order, dec("11.01"), dec("10"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonPriceBand, d.Reason)
	assert.True(t, d.Detail.BandHigh.Equal(dec("11")))

	d = v.Validate(acct, order, dec("8.99"), dec("10"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonPriceBand, d.Reason)
	assert.True(t, d.Detail.BandLow.Equal(dec("9")))
}

func TestValidatePriceBandByClass(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("1000000")}

	// growth instruments carry the wider band
	order := schema.Order{Symbol: "300750", Action: schema.ActionBuy, Quantity: dec("100")}
	assert.True(t, v.Validate(acct, order, dec("11.5"), dec("10")).Accepted)
	assert.False(t, v.Validate(acct, order, dec("12.01"), dec("10")).Accepted)
}

func TestValidateBandSkippedWithoutPriorClose(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("1000000")}

	order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec("100")}
	assert.True(t, v.Validate(acct, order, dec("999"), decimal.Zero).Accepted)
}

func TestValidateInsufficientCash(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("3017")}

	order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec("100")}
	d := v.Validate(acct, order, dec("30.18"), dec("30"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonInsufficientCash, d.Reason)
	assert.True(t, d.Detail.RequiredCash.Equal(dec("3018")))
	assert.True(t, d.Detail.AvailableCash.Equal(dec("3017")))
}

func TestValidateUnknownSymbol(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("1000000")}

	order := schema.Order{Symbol: "000000", Action: schema.ActionBuy, Quantity: dec("100")}
	d := v.Validate(acct, order, dec("10"), dec("10"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonUnknownSymbol, d.Reason)
}

func TestValidateInvalidQuantity(t *testing.T) {
	v := testValidator(t, aShareRules())
	acct := fakeAccount{cash: dec("1000000")}

	for _, qty := range []string{"0", "-100"} {
		order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec(qty)}
		d := v.Validate(acct, order, dec("10"), dec("10"))
		require.False(t, d.Accepted)
		assert.Equal(t, ReasonInvalidQuantity, d.Reason)
	}

	fractional := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec("100.5")}
	d := v.Validate(acct, fractional, dec("10"), dec("10"))
	require.False(t, d.Accepted)
	assert.Equal(t, ReasonInvalidQuantity, d.Reason)
}

func TestValidateFractionalAllowed(t *testing.T) {
	rules := MarketRules{LotSize: 1, AllowFractional: true}
	v := testValidator(t, rules)
	acct := fakeAccount{cash: dec("1000")}

	order := schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec("0.5")}
	assert.True(t, v.Validate(acct, order, dec("10"), dec("10")).Accepted)
}

func TestFeeScheduleTruncatesToCent(t *testing.T) {
	fees := FeeSchedule{TransferFeeRate: dec("0.00003")}

	// 200 x 30.18 = 6036 -> 0.18108 truncated to 0.18
	assert.True(t, fees.BuyFees(dec("6036")).Equal(dec("0.18")))
	// 200 x 31.00 = 6200 -> 0.186 truncated to 0.18
	assert.True(t, fees.SellFees(dec("6200")).Equal(dec("0.18")))
}

func TestFeeScheduleMinCommission(t *testing.T) {
	fees := FeeSchedule{CommissionRate: dec("0.0003"), MinCommission: dec("5")}

	assert.True(t, fees.BuyFees(dec("1000")).Equal(dec("5")))
	assert.True(t, fees.BuyFees(dec("100000")).Equal(dec("30")))
}

func TestMarketRulesValidate(t *testing.T) {
	bad := MarketRules{LotSize: 0}
	assert.Error(t, bad.Validate())

	negBand := aShareRules()
	negBand.Bands[schema.ClassOrdinary] = dec("-0.1")
	assert.Error(t, negBand.Validate())

	assert.NoError(t, aShareRules().Validate())
}
