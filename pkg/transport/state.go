package transport

// State is the connection state of a transport.
type State uint8

const (
	// StateUnconnected means no socket is open.
	StateUnconnected State = iota
	// StateConnected means a socket is open and idle.
	StateConnected
	// StateSending means a packet is being written.
	StateSending
	// StateAwaitingReply means a reply is being read.
	StateAwaitingReply
	// StateClosed means Close was called; the transport is unusable.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "UNCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateSending:
		return "SENDING"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
