package session

// State is a position in the relay session state machine
type State int

const (
	// StateNew is a session that has not been started
	StateNew State = iota
	// StateResolving looks up the master endpoint
	StateResolving
	// StateConnecting dials the resolved candidates in order
	StateConnecting
	// StateHandshaking upgrades the connection
	StateHandshaking
	// StateWriting sends the payload frame
	StateWriting
	// StateReading waits for the reply frame
	StateReading
	// StateClosing performs the closing handshake
	StateClosing
	// StateClosed is the terminal success state
	StateClosed
	// StateFailed is the terminal failure state
	StateFailed
)

// String returns the lower-case name of the state
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateWriting:
		return "writing"
	case StateReading:
		return "reading"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
