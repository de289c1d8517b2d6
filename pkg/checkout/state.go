package checkout

// State is the lifecycle position of a checkout session.
type State string

const (
	StateIdle                 State = "idle"
	StateInitiating           State = "initiating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
	StateTimedOut             State = "timed_out"
	StateError                State = "error"
)

// IsTerminal reports whether no further automatic transition can happen.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateError:
		return true
	}
	return false
}

// Active reports whether the session owns timers or an outstanding request.
func (s State) Active() bool {
	return s == StateInitiating || s == StateAwaitingConfirmation
}

func (s State) String() string { return string(s) }
