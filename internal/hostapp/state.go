package hostapp

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a session is moved to a state it
// cannot reach from its current one.
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the lifecycle state of a Session.
type State int

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

var stateNames = map[State]string{
	StateCreated:  "CREATED",
	StateStarting: "STARTING",
	StateRunning:  "RUNNING",
	StateStopping: "STOPPING",
	StateStopped:  "STOPPED",
	StateFailed:   "FAILED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// StateNames lists every state name in lifecycle order.
func StateNames() []string {
	names := make([]string, 0, len(stateNames))
	for s := StateCreated; s <= StateFailed; s++ {
		names = append(names, s.String())
	}
	return names
}

var transitions = map[State][]State{
	StateCreated:  {StateStarting},
	StateStarting: {StateRunning, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
