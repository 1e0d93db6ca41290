// Package lifecycle implements the engine run and component state machines.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// Transition table: from -> allowed tos
var validTransitions = map[types.RunStatus][]types.RunStatus{
	types.RunPending:   {types.RunRunning, types.RunFailed},
	types.RunRunning:   {types.RunCompleted, types.RunPartial, types.RunFailed},
	types.RunCompleted: {},
	types.RunPartial:   {},
	types.RunFailed:    {},
}

var validComponentTransitions = map[types.ComponentStatus][]types.ComponentStatus{
	types.ComponentPending:   {types.ComponentRunning, types.ComponentSkipped},
	types.ComponentRunning:   {types.ComponentSucceeded, types.ComponentFailed},
	types.ComponentSucceeded: {},
	types.ComponentFailed:    {},
	types.ComponentSkipped:   {},
}

func allowed[S comparable](table map[S][]S, from, to S) bool {
	tos, ok := table[from]
	if !ok {
		return false
	}
	for _, s := range tos {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransition checks if transitioning from one run status to another is valid.
func CanTransition(from, to types.RunStatus) bool {
	return allowed(validTransitions, from, to)
}

// Transition validates and returns the new status, or an error if the transition is invalid.
func Transition(from, to types.RunStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.RunStatus) bool {
	return status == types.RunCompleted || status == types.RunPartial || status == types.RunFailed
}

// CanTransitionComponent checks a component status change.
func CanTransitionComponent(from, to types.ComponentStatus) bool {
	return allowed(validComponentTransitions, from, to)
}

// TransitionComponent returns an error for an invalid component status change.
func TransitionComponent(from, to types.ComponentStatus) error {
	if !CanTransitionComponent(from, to) {
		return fmt.Errorf("invalid component transition from %s to %s", from, to)
	}
	return nil
}

// ComponentTerminal reports whether a component has finished, successfully or not.
func ComponentTerminal(status types.ComponentStatus) bool {
	return status == types.ComponentSucceeded || status == types.ComponentFailed || status == types.ComponentSkipped
}

// RunOutcome derives the terminal run status from component results.
// Any failed component in critical fails the run; otherwise any failed or
// skipped component makes it partial.
func RunOutcome(results []types.ComponentResult, critical map[string]bool) types.RunStatus {
	status := types.RunCompleted
	for _, r := range results {
		switch r.Status {
		case types.ComponentFailed:
			if critical[r.Name] {
				return types.RunFailed
			}
			status = types.RunPartial
		case types.ComponentSkipped:
			status = types.RunPartial
		}
	}
	return status
}
