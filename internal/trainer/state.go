package trainer

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an operation is called in the wrong state.
var ErrInvalidTransition = errors.New("invalid trainer state transition")

// State is the lifecycle stage of a Trainer.
type State int

// Trainer states.
const (
	StateUnfit State = iota
	StateFitting
	StateFit
	StateEvaluated
)

func (s State) String() string {
	switch s {
	case StateUnfit:
		return "UNFIT"
	case StateFitting:
		return "FITTING"
	case StateFit:
		return "FIT"
	case StateEvaluated:
		return "EVALUATED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsFitted reports whether the state holds a fitted model.
func IsFitted(s State) bool {
	return s == StateFit || s == StateEvaluated
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateUnfit:
		return to == StateFitting
	case StateFitting:
		// A failed fit falls back to UNFIT.
		return to == StateFit || to == StateUnfit
	case StateFit, StateEvaluated:
		return to == StateEvaluated
	default:
		return false
	}
}
