package monitor

// State is the loop's position in its tick cycle. Transitions are
// sequential; there is no concurrent ticking.
type State string

const (
	StateIdle        State = "idle"
	StateAggregating State = "aggregating"
	StateDeciding    State = "deciding"
	StateExecuting   State = "executing"
	StateSleeping    State = "sleeping"
)

// validTransitions defines the allowed transitions between loop states.
// Aggregating and deciding can fall straight through to sleeping when a
// tick fails or the recommendation is a no-op.
var validTransitions = map[State][]State{
	StateIdle:        {StateAggregating},
	StateAggregating: {StateDeciding, StateSleeping},
	StateDeciding:    {StateExecuting, StateSleeping},
	StateExecuting:   {StateSleeping},
	StateSleeping:    {StateAggregating},
}

// CanTransition reports whether the loop may move from one state to
// another.
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
