package pipeline

// State names one stage of a pipeline run. Transitions within a run are
// strictly sequential.
type State string

const (
	StateReceived      State = "RECEIVED"
	StatePolicyChecked State = "POLICY_CHECKED"
	StateWorked        State = "WORKED"
	StateAudited       State = "AUDITED"
	StateResolved      State = "RESOLVED"
	StateDelivered     State = "DELIVERED"
	StateAborted       State = "ABORTED"
)

var transitions = map[State][]State{
	StateReceived:      {StatePolicyChecked, StateAborted},
	StatePolicyChecked: {StateWorked, StateAborted},
	StateWorked:        {StateAudited, StateAborted},
	StateAudited:       {StateResolved, StateAborted},
	StateResolved:      {StateDelivered, StateWorked, StateAborted},
}

// CanTransition reports whether from -> to is a legal edge. DELIVERED and
// ABORTED are terminal. RESOLVED -> WORKED is the single retry re-entry.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
