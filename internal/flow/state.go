package flow

import "errors"

// ErrInvalidTransition indicates an invalid state transition was attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the position of a flow in its lifecycle.
type State string

const (
	StateCreated        State = "created"
	StateClassifying    State = "classifying"
	StateRouting        State = "routing"
	StateGreetingBranch State = "greeting_branch"
	StateCodeBranch     State = "code_branch"
	StateCategorizing   State = "categorizing"
	StateAnalyzing      State = "analyzing"
	StateConsolidating  State = "consolidating"
	StateTerminated     State = "terminated"
)

// validTransitions defines the allowed state transitions.
// Every non-terminal state may also jump to Terminated on error.
var validTransitions = map[State]map[State]bool{
	StateCreated: {
		StateClassifying: true,
		StateTerminated:  true,
	},
	StateClassifying: {
		StateRouting:    true,
		StateTerminated: true,
	},
	StateRouting: {
		StateGreetingBranch: true,
		StateCodeBranch:     true,
		StateCategorizing:   true,
		StateTerminated:     true,
	},
	StateGreetingBranch: {StateTerminated: true},
	StateCodeBranch:     {StateTerminated: true},
	StateCategorizing: {
		StateAnalyzing:  true,
		StateTerminated: true,
	},
	StateAnalyzing: {
		StateConsolidating: true,
		StateTerminated:    true,
	},
	StateConsolidating: {StateTerminated: true},
	// Terminal state: nothing follows
	StateTerminated: {},
}

// CanTransition checks if a state transition is valid.
func CanTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Phase names the step a flow error happened in, for messages and logs.
func (s State) Phase() string {
	switch s {
	case StateCategorizing, StateAnalyzing, StateConsolidating:
		return "artefact:" + string(s)
	default:
		return string(s)
	}
}
