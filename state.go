package serialplot

// State is the lifecycle state of an acquisition session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRetrying
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no loop can be running in this state.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateDisconnected || s == StateFailed
}

// canTransition encodes the allowed edges of the session state machine.
// Connected never goes straight back to Connecting; it passes through
// Retrying (reconnect) or Disconnected (stop).
func canTransition(from, to State) bool {
	switch from {
	case StateIdle, StateDisconnected, StateFailed:
		return to == StateConnecting
	case StateConnecting:
		return to == StateConnected || to == StateRetrying || to == StateDisconnected || to == StateFailed
	case StateConnected:
		return to == StateRetrying || to == StateDisconnected
	case StateRetrying:
		return to == StateRetrying || to == StateConnected || to == StateDisconnected || to == StateFailed
	}
	return false
}

// Severity tells a presentation layer how to render a status message.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityOK
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityOK:
		return "ok"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}
