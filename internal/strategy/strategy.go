package strategy

import (
	"context"
	"errors"
	"time"

	"main/internal/ledger"
	"main/internal/oracle"
	"main/internal/rules"
	"main/internal/schema"
)

// ErrTransient marks a provider failure worth retrying: the invocation
// itself failed, not the proposal. Anything not wrapping it is treated as
// permanent and aborts the step.
var ErrTransient = errors.New("transient provider failure")

// Context is everything a provider may see for one decision step. Market is
// cut at the session instant, so the provider physically cannot read ahead.
type Context struct {
	Agent     string
	RunID     string
	Session   time.Time
	Step      int
	Market    *oracle.View
	Portfolio ledger.Snapshot
	// Feedback carries the rejections from earlier rounds of this same step,
	// newest last, so the provider can repair its order.
	Feedback []rules.Decision
}

// Proposal is a provider's answer for one step.
type Proposal struct {
	// Orders to attempt this step, in order. Empty means hold.
	Orders []schema.Order
	// Summary is free-form reasoning for the audit log.
	Summary string
	// Research lists what the provider looked at while deciding; each note
	// becomes a research record in the audit log.
	Research []string
	// Stop asks the driver to end the agent's run after this step.
	Stop bool
}

// Provider turns a decision context into a proposal. Implementations must
// be deterministic given the same context and internal seed; wall-clock or
// external reads would break replayability.
type Provider interface {
	Name() string
	Propose(ctx context.Context, sc Context) (Proposal, error)
}
