package strategy

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
)

// ChaosConfig controls fault injection around a provider.
type ChaosConfig struct {
	Seed int64 `json:"seed"`
	// TransientRate is the probability an invocation fails with a
	// retryable error.
	TransientRate float64 `json:"transient_rate"`
	// PermanentRate is the probability an invocation fails hard.
	PermanentRate float64 `json:"permanent_rate"`
	// MalformRate is the probability an order's quantity gets knocked off
	// its lot boundary, exercising validator rejection paths.
	MalformRate float64 `json:"malform_rate"`
}

// Validate ensures the config is within supported ranges.
func (c ChaosConfig) Validate() error {
	for _, rate := range []float64{c.TransientRate, c.PermanentRate, c.MalformRate} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("chaos rates must be between 0 and 1")
		}
	}
	return nil
}

// Chaos wraps a provider with seeded fault injection. The seed makes every
// failure sequence reproducible, which is what lets the retry and rejection
// paths be tested deterministically.
type Chaos struct {
	inner Provider
	cfg   ChaosConfig
	rng   *rand.Rand
}

// NewChaos wraps a provider.
func NewChaos(inner Provider, cfg ChaosConfig) (*Chaos, error) {
	if inner == nil {
		return nil, fmt.Errorf("chaos inner provider is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chaos{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Name implements Provider.
func (c *Chaos) Name() string {
	return c.inner.Name() + "+chaos"
}

// Propose implements Provider.
func (c *Chaos) Propose(ctx context.Context, sc Context) (Proposal, error) {
	if c.cfg.PermanentRate > 0 && c.rng.Float64() < c.cfg.PermanentRate {
		return Proposal{}, fmt.Errorf("injected permanent failure at step %d", sc.Step)
	}
	if c.cfg.TransientRate > 0 && c.rng.Float64() < c.cfg.TransientRate {
		return Proposal{}, fmt.Errorf("%w: injected at step %d", ErrTransient, sc.Step)
	}
	proposal, err := c.inner.Propose(ctx, sc)
	if err != nil {
		return proposal, err
	}
	for i := range proposal.Orders {
		if c.cfg.MalformRate > 0 && c.rng.Float64() < c.cfg.MalformRate {
			proposal.Orders[i].Quantity = proposal.Orders[i].Quantity.Add(decimal.NewFromInt(1))
		}
	}
	return proposal, err
}
