package artifact

import (
	"errors"
	"fmt"
)

// State is a Builder phase.
type State int

const (
	Unloaded State = iota
	Loaded
	Expanded
	Validated
	Ready
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Expanded:
		return "expanded"
	case Validated:
		return "validated"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrNotReady is returned by operations that need a prepared builder.
	ErrNotReady = errors.New("artifact: builder is not ready")
	// ErrOutOfOrder is returned when a phase runs from the wrong state.
	ErrOutOfOrder = errors.New("artifact: phase called out of order")
)

// PhaseError reports a phase attempted from the wrong state.
type PhaseError struct {
	Phase string
	Want  State
	Got   State
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("artifact: %s requires state %s, builder is %s", e.Phase, e.Want, e.Got)
}

func (e *PhaseError) Unwrap() error {
	if e.Want == Ready {
		return ErrNotReady
	}
	return ErrOutOfOrder
}
