// Package lifecycle provides a small state machine for entity status fields.
// Each domain declares its legal transitions once as a Machine and validates
// every status change against it before persisting.
package lifecycle

import "fmt"

// TransitionError reports an attempt to move an entity between two states the
// machine does not connect.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition from %s to %s", e.Entity, e.From, e.To)
}

// Machine holds the transition table for one entity type. States with no
// outgoing transitions are terminal. A transition from a state to itself is
// always legal.
type Machine[S ~string] struct {
	entity      string
	transitions map[S][]S
}

// New builds a Machine for the named entity from its transition table.
func New[S ~string](entity string, transitions map[S][]S) *Machine[S] {
	return &Machine[S]{entity: entity, transitions: transitions}
}

// CanTransition reports whether from -> to is a legal move.
func (m *Machine[S]) CanTransition(from, to S) bool {
	if from == to {
		return true
	}
	for _, next := range m.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to, returning a *TransitionError when the move
// is illegal.
func (m *Machine[S]) Transition(from, to S) error {
	if !m.CanTransition(from, to) {
		return &TransitionError{Entity: m.entity, From: string(from), To: string(to)}
	}
	return nil
}

// IsTerminal reports whether the state has no outgoing transitions.
func (m *Machine[S]) IsTerminal(state S) bool {
	return len(m.transitions[state]) == 0
}

// NextStates returns the states reachable from the given state, excluding the
// implicit self transition.
func (m *Machine[S]) NextStates(state S) []S {
	out := make([]S, len(m.transitions[state]))
	copy(out, m.transitions[state])
	return out
}
