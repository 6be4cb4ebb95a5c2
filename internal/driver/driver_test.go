package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/oracle"
	"main/internal/rules"
	"main/internal/schema"
	"main/internal/strategy"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

type fakeProvider struct {
	calls int
	fn    func(call int, sc strategy.Context) (strategy.Proposal, error)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Propose(_ context.Context, sc strategy.Context) (strategy.Proposal, error) {
	p.calls++
	return p.fn(p.calls, sc)
}

func testStore(t *testing.T) *oracle.Store {
	t.Helper()
	store := oracle.NewStore()
	candle := func(open, high, low, close string, volume int64) *oracle.Candle {
		return &oracle.Candle{Open: dec(open), High: dec(high), Low: dec(low), Close: dec(close), Volume: volume}
	}
	err := store.Add("600519", []oracle.PricePoint{
		{Symbol: "600519", Timestamp: day(2), Entry: dec("30.18"), Candle: candle("30.18", "30.60", "30.00", "30.40", 1000)},
		{Symbol: "600519", Timestamp: day(3), Entry: dec("31.00"), Candle: candle("31.00", "31.40", "30.80", "31.20", 1100)},
		{Symbol: "600519", Timestamp: day(4), Entry: dec("31.10")},
	})
	require.NoError(t, err)
	return store
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Add(schema.Instrument{Symbol: "600519", Name: "Kweichow Moutai", Class: schema.ClassOrdinary}))
	validator, err := rules.NewValidator(rules.MarketRules{LotSize: 100, SettlementSessions: 1}, reg)
	require.NoError(t, err)
	book, err := ledger.Open(ledger.Config{
		Dir:         t.TempDir(),
		Agent:       "alpha",
		InitialCash: dec("100000"),
		LockTimeout: time.Second,
	}, validator)
	require.NoError(t, err)
	return book
}

func testDriver(t *testing.T, cfg Config, provider strategy.Provider) (*Driver, *obs.Metrics, *bus.Queue) {
	t.Helper()
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}
	metrics := obs.NewMetrics()
	events := bus.NewQueue(256)
	d, err := New(cfg, provider, testLedger(t), testStore(t), events, metrics)
	require.NoError(t, err)
	return d, metrics, events
}

func buyOrder(qty string) schema.Order {
	return schema.Order{Symbol: "600519", Action: schema.ActionBuy, Quantity: dec(qty)}
}

func TestRunExecutesAcrossSessions(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, sc strategy.Context) (strategy.Proposal, error) {
		if sc.Session.Equal(day(2)) && len(sc.Feedback) == 0 {
			return strategy.Proposal{Orders: []schema.Order{buyOrder("200")}, Summary: "entering"}, nil
		}
		return strategy.Proposal{Summary: "holding"}, nil
	}}
	d, metrics, _ := testDriver(t, Config{}, provider)

	result, err := d.Run(context.Background(), []time.Time{day(2), day(3)})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, 1, result.Trades)
	assert.True(t, result.Snapshot.Cash.Equal(dec("93964")))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.Steps)
	assert.Equal(t, uint64(1), snap.Trades)
}

func TestInvokeRetriesTransientFailures(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, _ strategy.Context) (strategy.Proposal, error) {
		if call <= 2 {
			return strategy.Proposal{}, strategy.ErrTransient
		}
		return strategy.Proposal{Orders: []schema.Order{buyOrder("100")}}, nil
	}}
	d, metrics, _ := testDriver(t, Config{MaxRetries: 3}, provider)

	step, err := d.RunStep(context.Background(), day(2), 0)
	require.NoError(t, err)
	assert.False(t, step.InvokeFailed)
	assert.Len(t, step.Executed, 1)
	assert.Equal(t, uint64(2), metrics.Snapshot().TransientRetries)
}

func TestInvokeRetryExhaustionEndsStepNotRun(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, _ strategy.Context) (strategy.Proposal, error) {
		return strategy.Proposal{}, strategy.ErrTransient
	}}
	d, metrics, _ := testDriver(t, Config{MaxRetries: 2}, provider)

	result, err := d.Run(context.Background(), []time.Time{day(2), day(3)})
	require.NoError(t, err)
	// both steps ran and failed; the run itself survived
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, 0, result.Trades)
	assert.Equal(t, uint64(2), metrics.Snapshot().PermanentFailures)
	// 2 retries per step after the initial attempt
	assert.Equal(t, uint64(4), metrics.Snapshot().TransientRetries)
}

func TestInvokePermanentErrorSkipsRetries(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, _ strategy.Context) (strategy.Proposal, error) {
		return strategy.Proposal{}, errors.New("model rejected the request")
	}}
	d, metrics, _ := testDriver(t, Config{MaxRetries: 5}, provider)

	step, err := d.RunStep(context.Background(), day(2), 0)
	require.NoError(t, err)
	assert.True(t, step.InvokeFailed)
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, uint64(0), metrics.Snapshot().TransientRetries)
}

func TestRejectionFeedbackRepair(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, sc strategy.Context) (strategy.Proposal, error) {
		if len(sc.Feedback) == 0 {
			return strategy.Proposal{Orders: []schema.Order{buyOrder("150")}}, nil
		}
		last := sc.Feedback[len(sc.Feedback)-1]
		require.Equal(t, rules.ReasonLotSize, last.Reason)
		return strategy.Proposal{Orders: []schema.Order{buyOrder("200")}}, nil
	}}
	d, metrics, _ := testDriver(t, Config{}, provider)

	step, err := d.RunStep(context.Background(), day(2), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, step.Rounds)
	assert.Len(t, step.Rejected, 1)
	assert.Len(t, step.Executed, 1)
	assert.Equal(t, uint64(1), metrics.Snapshot().RejectionCounts[rules.ReasonLotSize])
}

func TestRoundLimitStopsFeedbackLoop(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, _ strategy.Context) (strategy.Proposal, error) {
		return strategy.Proposal{Orders: []schema.Order{buyOrder("150")}}, nil
	}}
	d, _, _ := testDriver(t, Config{MaxRounds: 3}, provider)

	step, err := d.RunStep(context.Background(), day(2), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, step.Rounds)
	assert.Len(t, step.Rejected, 3)
	assert.Empty(t, step.Executed)
}

func TestStopFlagEndsRun(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, _ strategy.Context) (strategy.Proposal, error) {
		return strategy.Proposal{Summary: "done", Stop: true}, nil
	}}
	d, _, _ := testDriver(t, Config{}, provider)

	result, err := d.Run(context.Background(), []time.Time{day(2), day(3), day(4)})
	require.NoError(t, err)
	assert.True(t, result.Stopped)
	assert.Equal(t, 1, result.Steps)
}

func TestMaxStepsCapsRun(t *testing.T) {
	hold := &fakeProvider{fn: func(_ int, _ strategy.Context) (strategy.Proposal, error) {
		return strategy.Proposal{Summary: "hold"}, nil
	}}
	d, _, _ := testDriver(t, Config{MaxSteps: 1}, hold)

	result, err := d.Run(context.Background(), []time.Time{day(2), day(3)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Steps)
}

func TestAuditEventsPublished(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, _ strategy.Context) (strategy.Proposal, error) {
		return strategy.Proposal{Orders: []schema.Order{buyOrder("200")}, Summary: "entering"}, nil
	}}
	d, _, events := testDriver(t, Config{}, provider)

	_, err := d.RunStep(context.Background(), day(2), 0)
	require.NoError(t, err)
	events.Close()

	var kinds []schema.AuditType
	events.Run(context.Background(), func(e bus.Event) {
		kinds = append(kinds, e.Record.Type)
		assert.Equal(t, "alpha", e.Record.Agent)
		assert.Equal(t, "2025-06-02 00:00", e.Record.Timestamp)
	})
	assert.Equal(t, []schema.AuditType{
		schema.AuditMarketAnalysis,
		schema.AuditDecision,
		schema.AuditTrade,
	}, kinds)
}

func TestMissingPriceSkipsOrder(t *testing.T) {
	provider := &fakeProvider{fn: func(_ int, _ strategy.Context) (strategy.Proposal, error) {
		return strategy.Proposal{Orders: []schema.Order{
			{Symbol: "999999", Action: schema.ActionBuy, Quantity: dec("100")},
		}}, nil
	}}
	d, _, _ := testDriver(t, Config{}, provider)

	step, err := d.RunStep(context.Background(), day(2), 0)
	require.NoError(t, err)
	assert.Empty(t, step.Executed)
	assert.Empty(t, step.Rejected)
	assert.Equal(t, StepStateDone, step.State)
}
