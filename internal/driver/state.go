package driver

// StepState tracks where a decision step is in its lifecycle.
type StepState uint16

const (
	StepStateUnknown StepState = iota
	StepStateBuildContext
	StepStateInvoke
	StepStateValidate
	StepStateApply
	StepStateContinue
	StepStateStop
	StepStateDone
)

func (s StepState) String() string {
	switch s {
	case StepStateBuildContext:
		return "build_context"
	case StepStateInvoke:
		return "invoke"
	case StepStateValidate:
		return "validate"
	case StepStateApply:
		return "apply"
	case StepStateContinue:
		return "continue"
	case StepStateStop:
		return "stop"
	case StepStateDone:
		return "done"
	default:
		return "unknown"
	}
}
