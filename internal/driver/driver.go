// Package driver runs the per-agent decision loop: for each calendar
// session it builds an as-of-gated context, invokes the strategy provider,
// validates and applies the proposed orders, and feeds rejections back for
// repair rounds within the same step.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/indicators"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/oracle"
	"main/internal/rules"
	"main/internal/schema"
	"main/internal/strategy"
)

const (
	defaultMaxRounds   = 3
	defaultMaxRetries  = 3
	defaultBackoffBase = 500 * time.Millisecond
)

// Config controls the decision loop.
type Config struct {
	// MaxRounds bounds proposal rounds within one step.
	MaxRounds int
	// MaxRetries bounds transient-failure retries per invocation.
	MaxRetries uint64
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// MaxSteps caps the run; 0 means the whole calendar.
	MaxSteps int
	RunID    string
}

func (c Config) withDefaults() Config {
	if c.MaxRounds <= 0 {
		c.MaxRounds = defaultMaxRounds
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	return c
}

// StepResult summarizes one decision step.
type StepResult struct {
	State        StepState
	Session      time.Time
	Rounds       int
	Executed     []rules.Decision
	Rejected     []rules.Decision
	Stop         bool
	InvokeFailed bool
}

// RunResult summarizes a full calendar walk.
type RunResult struct {
	RunID    string
	Steps    int
	Trades   int
	Stopped  bool
	Snapshot ledger.Snapshot
}

// Driver executes the decision loop for one agent.
type Driver struct {
	cfg      Config
	provider strategy.Provider
	book     *ledger.Ledger
	store    *oracle.Store
	events   *bus.Queue
	metrics  *obs.Metrics
	trace    *obs.StepTracer
}

// New wires a driver. events and metrics may be nil.
func New(cfg Config, provider strategy.Provider, book *ledger.Ledger, store *oracle.Store, events *bus.Queue, metrics *obs.Metrics) (*Driver, error) {
	if provider == nil {
		return nil, fmt.Errorf("driver provider is nil")
	}
	if book == nil {
		return nil, fmt.Errorf("driver ledger is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("driver oracle store is nil")
	}
	return &Driver{
		cfg:      cfg.withDefaults(),
		provider: provider,
		book:     book,
		store:    store,
		events:   events,
		metrics:  metrics,
		trace:    obs.NewStepTracer(),
	}, nil
}

// RunID returns the run signature stamped on audit records.
func (d *Driver) RunID() string {
	return d.cfg.RunID
}

// Run walks the calendar sequentially. A step failure (retry exhaustion,
// missing data) logs and moves on; only ledger-level errors abort the run.
func (d *Driver) Run(ctx context.Context, calendar []time.Time) (RunResult, error) {
	result := RunResult{RunID: d.cfg.RunID}
	for i, session := range calendar {
		if d.cfg.MaxSteps > 0 && i >= d.cfg.MaxSteps {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		step, err := d.RunStep(ctx, session, i)
		if err != nil {
			return result, fmt.Errorf("step %d (%s): %w", i, schema.FormatDate(session), err)
		}
		result.Steps++
		result.Trades += len(step.Executed)
		if step.Stop {
			result.Stopped = true
			break
		}
	}
	result.Snapshot = d.book.Snapshot()
	return result, nil
}

// RunStep executes one decision step against one session instant.
func (d *Driver) RunStep(ctx context.Context, session time.Time, step int) (StepResult, error) {
	d.metrics.IncStep()
	stepID := d.trace.Next()
	result := StepResult{State: StepStateBuildContext, Session: session}

	market := d.store.At(session)
	d.emitMarketAnalysis(session, market)

	var feedback []rules.Decision
	for round := 1; round <= d.cfg.MaxRounds; round++ {
		result.Rounds = round
		result.State = StepStateInvoke

		sc := strategy.Context{
			Agent:     d.book.Agent(),
			RunID:     d.cfg.RunID,
			Session:   session,
			Step:      step,
			Market:    market,
			Portfolio: d.book.Snapshot(),
			Feedback:  feedback,
		}
		proposal, err := d.invoke(ctx, sc)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			d.metrics.IncPermanentFailure()
			logs.Errorf("agent %s step %d: invoke failed, step abandoned: %v", d.book.Agent(), stepID, err)
			d.emitDecision(session, fmt.Sprintf("invoke failed: %v", err), nil)
			result.InvokeFailed = true
			result.State = StepStateDone
			return result, nil
		}

		for _, note := range proposal.Research {
			d.publish(schema.AuditResearch, session, note, nil)
		}
		d.emitDecision(session, proposal.Summary, proposal.Orders)
		if proposal.Stop {
			result.Stop = true
		}
		if len(proposal.Orders) == 0 {
			d.metrics.IncHold()
			break
		}

		rejected, err := d.applyOrders(ctx, session, proposal.Orders, &result)
		if err != nil {
			return result, err
		}
		if len(rejected) == 0 || result.Stop {
			break
		}
		feedback = append(feedback, rejected...)
		result.State = StepStateContinue
	}

	if result.Stop {
		result.State = StepStateStop
	} else {
		result.State = StepStateDone
	}
	return result, nil
}

// invoke calls the provider under the bounded exponential-backoff policy.
// Only strategy.ErrTransient is retried; anything else fails immediately.
func (d *Driver) invoke(ctx context.Context, sc strategy.Context) (strategy.Proposal, error) {
	var proposal strategy.Proposal

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.BackoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, d.cfg.MaxRetries), ctx)

	operation := func() error {
		start := time.Now()
		p, err := d.provider.Propose(ctx, sc)
		d.metrics.ObserveInvoke(time.Since(start))
		if err != nil {
			if errors.Is(err, strategy.ErrTransient) {
				return err
			}
			return backoff.Permanent(err)
		}
		proposal = p
		return nil
	}
	notify := func(err error, next time.Duration) {
		d.metrics.IncTransientRetry()
		logs.Infof("agent %s: transient invoke failure, retrying in %s: %v", d.book.Agent(), next, err)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return strategy.Proposal{}, err
	}
	return proposal, nil
}

// applyOrders validates and applies one round's orders, returning the
// rejections for the next round's feedback.
func (d *Driver) applyOrders(ctx context.Context, session time.Time, orders []schema.Order, result *StepResult) ([]rules.Decision, error) {
	var rejected []rules.Decision
	for _, order := range orders {
		result.State = StepStateValidate

		point, err := d.store.GetPrice(order.Symbol, session)
		if err != nil {
			if errors.Is(err, oracle.ErrNotFound) {
				logs.Infof("agent %s: no price for %s at %s, order skipped", d.book.Agent(), order.Symbol, schema.FormatDate(session))
				d.emitDecision(session, fmt.Sprintf("skipped %s %s: no market data", order.Action, order.Symbol), nil)
				continue
			}
			return rejected, err
		}
		priorClose, err := d.store.PriorClose(order.Symbol, session)
		if err != nil && !errors.Is(err, oracle.ErrNotFound) {
			return rejected, err
		}

		result.State = StepStateApply
		start := time.Now()
		decision, snap, err := d.book.Apply(ctx, order, point.Entry, priorClose, session)
		d.metrics.ObserveApply(time.Since(start))
		if err != nil {
			return rejected, err
		}

		if decision.Accepted {
			result.Executed = append(result.Executed, decision)
			d.metrics.IncTrade()
			d.emitTrade(session, decision, snap)
		} else {
			result.Rejected = append(result.Rejected, decision)
			rejected = append(rejected, decision)
			d.metrics.IncRejection(decision.Reason)
			d.emitDecision(session, fmt.Sprintf("rejected %s %s x%s: %s", order.Action, order.Symbol, order.Quantity, decision.Reason), decision)
		}
	}
	return rejected, nil
}

// analysisLookback bounds the history window behind the market_analysis
// record's indicator readings.
const analysisLookback = 60

func (d *Driver) emitMarketAnalysis(session time.Time, market *oracle.View) {
	entries := make(map[string]map[string]string)
	for _, symbol := range market.Symbols() {
		point, err := market.Price(symbol)
		if err != nil {
			continue
		}
		entry := map[string]string{"entry": point.Entry.String()}
		if rsi, ok := sessionRSI(market, symbol); ok {
			entry["rsi"] = fmt.Sprintf("%.2f", rsi)
		}
		entries[symbol] = entry
	}
	if len(entries) == 0 {
		return
	}
	d.publish(schema.AuditMarketAnalysis, session, fmt.Sprintf("%d symbols visible", len(entries)), entries)
}

func sessionRSI(market *oracle.View, symbol string) (float64, bool) {
	history, err := market.History(symbol, analysisLookback)
	if err != nil {
		return 0, false
	}
	closes := make([]float64, 0, len(history))
	for _, p := range history {
		if p.Candle != nil {
			closes = append(closes, p.Candle.Close.InexactFloat64())
		}
	}
	rsi := indicators.Last(indicators.RSI(closes, 14))
	if math.IsNaN(rsi) {
		return 0, false
	}
	return rsi, true
}

func (d *Driver) emitDecision(session time.Time, summary string, payload any) {
	d.publish(schema.AuditDecision, session, summary, payload)
}

func (d *Driver) emitTrade(session time.Time, decision rules.Decision, snap ledger.Snapshot) {
	summary := fmt.Sprintf("%s %s x%s at %s", decision.Order.Action, decision.Order.Symbol, decision.Order.Quantity, decision.Price)
	d.publish(schema.AuditTrade, session, summary, map[string]any{
		"order":    decision.Order,
		"price":    decision.Price,
		"fees":     decision.Fees,
		"snapshot": snap,
	})
}

func (d *Driver) publish(kind schema.AuditType, session time.Time, summary string, payload any) {
	if d.events == nil {
		return
	}
	rec := schema.AuditRecord{
		Type:      kind,
		Timestamp: schema.FormatDate(session),
		RunID:     d.cfg.RunID,
		Agent:     d.book.Agent(),
		Summary:   summary,
		Payload:   payload,
	}
	if err := d.events.TryPublish(bus.Event{Record: rec}); err != nil {
		d.metrics.IncAuditDrop()
	}
	d.metrics.IncAudit(kind)
}
