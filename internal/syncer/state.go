package syncer

import "fmt"

// State is one step of a sync run.
type State string

const (
	StateIdle        State = "IDLE"
	StateDetecting   State = "DETECTING"
	StateFetching    State = "FETCHING"
	StateDecoding    State = "DECODING"
	StateClassifying State = "CLASSIFYING"
	StateCommitting  State = "COMMITTING"
	StatePurging     State = "PURGING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// next is the linear pipeline; FAILED is reachable from every non-terminal state.
var next = map[State]State{
	StateIdle:        StateDetecting,
	StateDetecting:   StateFetching,
	StateFetching:    StateDecoding,
	StateDecoding:    StateClassifying,
	StateClassifying: StateCommitting,
	StateCommitting:  StatePurging,
	StatePurging:     StateDone,
}

// IsTerminal reports whether a run in state s has finished.
func IsTerminal(s State) bool {
	return s == StateDone || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	if IsTerminal(from) {
		return to == StateIdle || to == StateDetecting
	}
	if to == StateFailed {
		return true
	}
	// An agenda whose ETag matches the stored one ends the run after FETCHING.
	if from == StateFetching && to == StateDone {
		return true
	}
	return next[from] == to
}

// run tracks the state of one sync run.
type run struct {
	state State
}

// transition moves the run from "from" to "to", failing on races or skips.
func (r *run) transition(from, to State) error {
	if r.state != from {
		return fmt.Errorf("invalid transition: expected %s, got %s", from, r.state)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	r.state = to
	return nil
}
