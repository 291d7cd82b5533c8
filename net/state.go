package net

// The lifecycle state of a transport handle.  Connections and listeners
// move through these states as follows:
//
//	Idle -> Preparing -> Ready -> Cancelled
//	            |          |
//	            +-> Failed <+
//
// Failed and Cancelled end all i/o.  A failed handle may still be
// cancelled, which releases its resources.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateReady
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePreparing:
		return "Preparing"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateFailed || s == StateCancelled
}

// Invoked on every state transition.  The error is only set for StateFailed.
type StateHandler func(State, error)
