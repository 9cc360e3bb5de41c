package sandbox

import "fmt"

// State is the lifecycle state of a Manager.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateDegraded      State = "degraded"
	StateStopped       State = "stopped"
)

// transitions lists every legal state change. Stop is legal from any state,
// and Recover may leave a ready or degraded sandbox where it is.
var transitions = map[State][]State{
	StateUninitialized: {StateReady, StateDegraded, StateStopped},
	StateReady:         {StateDegraded, StateStopped},
	StateDegraded:      {StateReady, StateDegraded, StateStopped},
	StateStopped:       {StateStopped},
}

// canTransition reports whether from -> to appears in the transition table.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// errIllegalTransition describes a refused transition.
func errIllegalTransition(from, to State) error {
	return fmt.Errorf("illegal state transition %s -> %s", from, to)
}
