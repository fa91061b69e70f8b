package job

import "github.com/fabiand/igor/internal/statemachine"

// States per spec.md §4.4: open -> preparing -> prepared -> running ->
// {passed, failed, aborted, timedout}.
var (
	StateOpen      = statemachine.State{Name: "open"}
	StatePreparing = statemachine.State{Name: "preparing"}
	StatePrepared  = statemachine.State{Name: "prepared"}
	StateRunning   = statemachine.State{Name: "running"}
	StatePassed    = statemachine.State{Name: "passed"}
	StateFailed    = statemachine.State{Name: "failed"}
	StateAborted   = statemachine.State{Name: "aborted"}
	StateTimedout  = statemachine.State{Name: "timedout"}
)

var endStates = []statemachine.State{StatePassed, StateFailed, StateAborted, StateTimedout}

// IsEndState reports whether s is one of the four terminal states.
func IsEndState(s statemachine.State) bool {
	for _, e := range endStates {
		if s.Is(e) {
			return true
		}
	}
	return false
}
