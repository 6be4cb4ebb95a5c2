package obs

import "sync/atomic"

// StepTracer hands out monotonically increasing step ids used to correlate
// log lines within one run. Ids are deterministic: they start at 1 and never
// depend on wall-clock time, so two replays of the same run log the same ids.
type StepTracer struct {
	next uint64
}

// NewStepTracer returns a tracer starting at 1.
func NewStepTracer() *StepTracer {
	return &StepTracer{}
}

// Next returns the next step id.
func (t *StepTracer) Next() uint64 {
	if t == nil {
		return 0
	}
	return atomic.AddUint64(&t.next, 1)
}
