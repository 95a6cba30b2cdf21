package dialog

import (
	"fmt"
	"time"
)

// State is a step of the orchestrator state machine.
type State int

// Orchestrator states. Completed and Failed are terminal.
const (
	StateAwaitingDriver State = iota
	StateRetryingDriver
	StateAwaitingModel
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingDriver:
		return "AwaitingDriver"
	case StateRetryingDriver:
		return "RetryingDriver"
	case StateAwaitingModel:
		return "AwaitingModel"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s ends an exchange.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// StateTransition records one move of the state machine.
type StateTransition struct {
	FromState State
	ToState   State
	Round     int
	Attempt   int
	Timestamp time.Time
}
