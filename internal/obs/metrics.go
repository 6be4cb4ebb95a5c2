package obs

import (
	"sync/atomic"
	"time"

	"main/internal/rules"
	"main/internal/schema"
)

// reason and audit-type counters are fixed-size atomic arrays; the index
// maps below pin the order.
var reasonIndex = []rules.Reason{
	rules.ReasonInvalidQuantity,
	rules.ReasonLotSize,
	rules.ReasonUnknownSymbol,
	rules.ReasonInsufficientCash,
	rules.ReasonInsufficientPosition,
	rules.ReasonPriceBand,
}

var auditIndex = []schema.AuditType{
	schema.AuditMarketAnalysis,
	schema.AuditDecision,
	schema.AuditTrade,
	schema.AuditResearch,
}

// Metrics collects lightweight counters and latency stats for one agent's
// decision loop.
type Metrics struct {
	steps             uint64
	trades            uint64
	holds             uint64
	rejectionCounts   [8]uint64
	auditCounts       [8]uint64
	transientRetries  uint64
	permanentFailures uint64
	auditDrops        uint64

	invokeLatency LatencyStats
	applyLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Steps             uint64
	Trades            uint64
	Holds             uint64
	RejectionCounts   map[rules.Reason]uint64
	AuditCounts       map[schema.AuditType]uint64
	TransientRetries  uint64
	PermanentFailures uint64
	AuditDrops        uint64
	InvokeLatency     LatencySnapshot
	ApplyLatency      LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncStep counts one decision step.
func (m *Metrics) IncStep() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.steps, 1)
}

// IncTrade counts one accepted, executed order.
func (m *Metrics) IncTrade() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.trades, 1)
}

// IncHold counts a step that proposed no orders.
func (m *Metrics) IncHold() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.holds, 1)
}

// IncRejection counts a validator rejection by reason.
func (m *Metrics) IncRejection(reason rules.Reason) {
	if m == nil {
		return
	}
	for i, r := range reasonIndex {
		if r == reason {
			atomic.AddUint64(&m.rejectionCounts[i], 1)
			return
		}
	}
}

// IncAudit counts an emitted audit record by type.
func (m *Metrics) IncAudit(kind schema.AuditType) {
	if m == nil {
		return
	}
	for i, k := range auditIndex {
		if k == kind {
			atomic.AddUint64(&m.auditCounts[i], 1)
			return
		}
	}
}

// IncTransientRetry counts a retried provider invocation.
func (m *Metrics) IncTransientRetry() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.transientRetries, 1)
}

// IncPermanentFailure counts a step abandoned on a permanent error.
func (m *Metrics) IncPermanentFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.permanentFailures, 1)
}

// IncAuditDrop records an audit record lost to a full queue.
func (m *Metrics) IncAuditDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.auditDrops, 1)
}

// ObserveInvoke measures one provider invocation.
func (m *Metrics) ObserveInvoke(d time.Duration) {
	if m == nil {
		return
	}
	m.invokeLatency.Observe(d)
}

// ObserveApply measures one ledger apply.
func (m *Metrics) ObserveApply(d time.Duration) {
	if m == nil {
		return
	}
	m.applyLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	rejections := make(map[rules.Reason]uint64)
	for i, r := range reasonIndex {
		if v := atomic.LoadUint64(&m.rejectionCounts[i]); v > 0 {
			rejections[r] = v
		}
	}
	audits := make(map[schema.AuditType]uint64)
	for i, k := range auditIndex {
		if v := atomic.LoadUint64(&m.auditCounts[i]); v > 0 {
			audits[k] = v
		}
	}
	return Snapshot{
		Steps:             atomic.LoadUint64(&m.steps),
		Trades:            atomic.LoadUint64(&m.trades),
		Holds:             atomic.LoadUint64(&m.holds),
		RejectionCounts:   rejections,
		AuditCounts:       audits,
		TransientRetries:  atomic.LoadUint64(&m.transientRetries),
		PermanentFailures: atomic.LoadUint64(&m.permanentFailures),
		AuditDrops:        atomic.LoadUint64(&m.auditDrops),
		InvokeLatency:     m.invokeLatency.Snapshot(),
		ApplyLatency:      m.applyLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
