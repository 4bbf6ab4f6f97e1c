package coordinator

// State is the coordinator's position within a cycle.
type State int32

const (
	StateIdle State = iota
	StateFundingCheck
	StateFeeWait
	StateEvaluating
	StateSubmitting
	StateConfirming
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFundingCheck:
		return "FUNDING_CHECK"
	case StateFeeWait:
		return "FEE_WAIT"
	case StateEvaluating:
		return "EVALUATING"
	case StateSubmitting:
		return "SUBMITTING"
	case StateConfirming:
		return "CONFIRMING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether s ends a cycle.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
