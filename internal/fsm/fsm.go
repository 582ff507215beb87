// Package fsm models the meeting lifecycle consumed by the dispatcher.
package fsm

import "fmt"

// State is one lifecycle state for a capture meeting.
type State string

// Event is one transition trigger consumed by the state machine.
type Event string

const (
	// StateWaiting is the initial state before a START frame arrives.
	StateWaiting State = "waiting"
	// StateRunning covers active capture between START and STOP.
	StateRunning State = "running"
	// StateDraining covers shutdown: processors finalising, writers closing.
	StateDraining State = "draining"
	// StateDone is the terminal post-drain state.
	StateDone State = "done"
	// StateError is entered on any fatal failure.
	StateError State = "error"
)

const (
	EventStart   Event = "start"
	EventStop    Event = "stop"
	EventDrained Event = "drained"
	EventFail    Event = "fail"
)

// Transition validates and applies one state transition.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateWaiting:
		if event == EventStart {
			return StateRunning, nil
		}
	case StateRunning:
		if event == EventStop {
			return StateDraining, nil
		}
	case StateDraining:
		if event == EventDrained {
			return StateDone, nil
		}
	case StateDone, StateError:
		// Terminal states accept no events other than EventFail.
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(current, event)
}

// invalidTransition formats a stable error message used by tests and callers.
func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
