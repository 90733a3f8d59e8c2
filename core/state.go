package core

// SessionState is the top-level state of a body or lens session
type SessionState uint32

const (
	StateOff SessionState = iota
	StatePoweringUp
	// StateCommanding is the body's steady state
	StateCommanding
	// StateAwaitingCommand is the lens's steady state
	StateAwaitingCommand
)

func (s SessionState) String() string {
	switch s {
	case StatePoweringUp:
		return "powering_up"
	case StateCommanding:
		return "commanding"
	case StateAwaitingCommand:
		return "awaiting_command"
	}
	return "off"
}

// Steady reports whether the session finished powering up
func (s SessionState) Steady() bool {
	return s == StateCommanding || s == StateAwaitingCommand
}
