package lifecycle

import (
	"errors"
	"testing"
)

type testState string

const (
	stateDraft     testState = "DRAFT"
	stateLocked    testState = "LOCKED"
	stateDispensed testState = "DISPENSED"
	stateCancelled testState = "CANCELLED"
)

func newTestMachine() *Machine[testState] {
	return New("prescription", map[testState][]testState{
		stateDraft:  {stateLocked, stateCancelled},
		stateLocked: {stateDispensed},
	})
}

func TestCanTransition(t *testing.T) {
	m := newTestMachine()

	cases := []struct {
		from, to testState
		want     bool
	}{
		{stateDraft, stateLocked, true},
		{stateDraft, stateCancelled, true},
		{stateDraft, stateDispensed, false},
		{stateLocked, stateDispensed, true},
		{stateLocked, stateCancelled, false},
		{stateLocked, stateDraft, false},
		{stateCancelled, stateLocked, false},
		{stateDispensed, stateDraft, false},
	}
	for _, c := range cases {
		if got := m.CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestCanTransition_SelfAlwaysLegal(t *testing.T) {
	m := newTestMachine()

	for _, s := range []testState{stateDraft, stateLocked, stateDispensed, stateCancelled} {
		if !m.CanTransition(s, s) {
			t.Errorf("self transition on %s should be legal", s)
		}
	}
}

func TestTransition_ErrorDetails(t *testing.T) {
	m := newTestMachine()

	err := m.Transition(stateCancelled, stateLocked)
	if err == nil {
		t.Fatal("expected error for CANCELLED -> LOCKED")
	}

	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if terr.Entity != "prescription" || terr.From != "CANCELLED" || terr.To != "LOCKED" {
		t.Errorf("unexpected error fields: %+v", terr)
	}
}

func TestIsTerminal(t *testing.T) {
	m := newTestMachine()

	if m.IsTerminal(stateDraft) {
		t.Error("DRAFT should not be terminal")
	}
	if m.IsTerminal(stateLocked) {
		t.Error("LOCKED should not be terminal")
	}
	if !m.IsTerminal(stateDispensed) {
		t.Error("DISPENSED should be terminal")
	}
	if !m.IsTerminal(stateCancelled) {
		t.Error("CANCELLED should be terminal")
	}
}

func TestNextStates(t *testing.T) {
	m := newTestMachine()

	next := m.NextStates(stateDraft)
	if len(next) != 2 {
		t.Fatalf("expected 2 next states from DRAFT, got %d", len(next))
	}

	if got := m.NextStates(stateDispensed); len(got) != 0 {
		t.Errorf("expected no next states from DISPENSED, got %v", got)
	}
}
