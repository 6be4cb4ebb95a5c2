package strategy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/ledger"
	"main/internal/oracle"
	"main/internal/rules"
	"main/internal/schema"
)

// risingStore builds a 40-session uptrend ending in an entry-only frontier.
func risingStore(t *testing.T) (*oracle.Store, time.Time) {
	t.Helper()
	store := oracle.NewStore()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	var points []oracle.PricePoint
	price := 100.0
	for i := 0; i < 39; i++ {
		price *= 1.01
		close := decimal.RequireFromString(fmt.Sprintf("%.2f", price))
		open := close.Sub(dec("0.10"))
		points = append(points, oracle.PricePoint{
			Symbol:    "600519",
			Timestamp: base.AddDate(0, 0, i),
			Entry:     open,
			Candle: &oracle.Candle{
				Open:   open,
				High:   close.Add(dec("0.50")),
				Low:    open.Sub(dec("0.50")),
				Close:  close,
				Volume: 1000,
			},
		})
	}
	frontier := base.AddDate(0, 0, 39)
	points = append(points, oracle.PricePoint{
		Symbol:    "600519",
		Timestamp: frontier,
		Entry:     dec("150.00"),
	})
	require.NoError(t, store.Add("600519", points))
	return store, frontier
}

func TestTechnicalSellsOverboughtHolding(t *testing.T) {
	store, frontier := risingStore(t)
	provider := NewTechnical("tech", TechnicalConfig{})

	p, err := provider.Propose(context.Background(), Context{
		Session: frontier,
		Market:  store.At(frontier),
		Portfolio: ledger.Snapshot{
			Cash: dec("1000"),
			Positions: []ledger.SnapshotPosition{
				{Symbol: "600519", Qty: dec("200")},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, p.Orders, 1)
	assert.Equal(t, schema.ActionSell, p.Orders[0].Action)
	assert.True(t, p.Orders[0].Quantity.Equal(dec("200")))
	require.NotEmpty(t, p.Research)
	assert.Contains(t, p.Research[0], "600519")
}

func TestTechnicalHoldsWithoutPositionOrSignal(t *testing.T) {
	store, frontier := risingStore(t)
	provider := NewTechnical("tech", TechnicalConfig{})

	// overbought but nothing held, and far too expensive to be oversold
	p, err := provider.Propose(context.Background(), Context{
		Session:   frontier,
		Market:    store.At(frontier),
		Portfolio: ledger.Snapshot{Cash: dec("100000")},
	})
	require.NoError(t, err)
	assert.Empty(t, p.Orders)
}

func TestTechnicalHoldsAfterRejection(t *testing.T) {
	store, frontier := risingStore(t)
	provider := NewTechnical("tech", TechnicalConfig{})

	p, err := provider.Propose(context.Background(), Context{
		Session: frontier,
		Market:  store.At(frontier),
		Portfolio: ledger.Snapshot{
			Cash: dec("1000"),
			Positions: []ledger.SnapshotPosition{
				{Symbol: "600519", Qty: dec("200")},
			},
		},
		Feedback: []rules.Decision{{Reason: rules.ReasonPriceBand}},
	})
	require.NoError(t, err)
	// one shot per step: a rejection means hold, not resubmit
	assert.Empty(t, p.Orders)
}
