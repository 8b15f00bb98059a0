package models

import "fmt"

// State is the workflow state shared by expenses and payments.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// ParseState converts a stored or requested state name.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePending, StateApproved, StateRejected:
		return State(s), nil
	}
	return "", fmt.Errorf("unknown state %q", s)
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateRejected
}

// CanTransition reports whether s may move to next.
// Only pending entries move, and only to a terminal state.
func (s State) CanTransition(next State) bool {
	return s == StatePending && next.Terminal()
}
