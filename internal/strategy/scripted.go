package strategy

import (
	"context"
	"fmt"

	"main/internal/rules"
	"main/internal/schema"
)

// ScriptStep is the scripted answer for one session.
type ScriptStep struct {
	Date    string         `json:"date"`
	Orders  []schema.Order `json:"orders"`
	Summary string         `json:"summary,omitempty"`
	Stop    bool           `json:"stop,omitempty"`
}

// Scripted replays a fixed per-session script. Sessions without an entry
// hold. It is the reference provider for simulations that must reproduce
// byte-identical runs, and the workhorse of the test suite.
type Scripted struct {
	name  string
	steps map[string]ScriptStep
	// RepairLots resubmits a lot-size-rejected buy at the nearest valid
	// quantity below, exercising the driver's feedback rounds.
	RepairLots bool
}

// NewScripted builds a provider from script steps. Duplicate dates are an
// error: the script would be ambiguous.
func NewScripted(name string, steps []ScriptStep) (*Scripted, error) {
	if name == "" {
		name = "scripted"
	}
	byDate := make(map[string]ScriptStep, len(steps))
	for _, step := range steps {
		if _, ok := byDate[step.Date]; ok {
			return nil, fmt.Errorf("duplicate script date: %s", step.Date)
		}
		byDate[step.Date] = step
	}
	return &Scripted{name: name, steps: byDate}, nil
}

// Name implements Provider.
func (s *Scripted) Name() string {
	return s.name
}

// Propose implements Provider.
func (s *Scripted) Propose(_ context.Context, sc Context) (Proposal, error) {
	if s.RepairLots && len(sc.Feedback) > 0 {
		return s.repair(sc), nil
	}
	step, ok := s.steps[schema.FormatDate(sc.Session)]
	if !ok {
		return Proposal{Summary: "no scripted action"}, nil
	}
	return Proposal{Orders: step.Orders, Summary: step.Summary, Stop: step.Stop}, nil
}

func (s *Scripted) repair(sc Context) Proposal {
	last := sc.Feedback[len(sc.Feedback)-1]
	if last.Reason != rules.ReasonLotSize {
		return Proposal{Summary: "rejection not repairable, holding"}
	}
	qty := last.Detail.NearestLotBelow
	if qty.Sign() <= 0 {
		return Proposal{Summary: "no valid lot below attempted quantity, holding"}
	}
	order := last.Order
	order.Quantity = qty
	return Proposal{
		Orders:  []schema.Order{order},
		Summary: fmt.Sprintf("resubmitting %s %s at lot-aligned quantity %s", order.Action, order.Symbol, qty),
	}
}
