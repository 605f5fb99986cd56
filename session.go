package drainhub

// SessionState is the lifecycle state of a single client connection.
//
// Transitions are monotonic: StateOpen -> StateClosing -> StateClosed.
// There is no transition backward.
type SessionState int32

const (
	StateOpen SessionState = iota
	StateClosing
	StateClosed
)

// String returns string representation of SessionState.
func (s SessionState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live client connection as seen by the Registry, the
// Broadcaster fan-out and the forced-close sweep of the Coordinator.
//
// The implementation owns the underlying transport exclusively and closes it
// exactly once.
type Session interface {
	// ID returns the unique per-connection identifier.
	ID() string

	// Send delivers one outbound message to the peer. Delivery order for a
	// single session is FIFO.
	Send(payload []byte) error

	// Close terminates the session with the given reason. It is idempotent:
	// only the first call has effect, any later call returns nil.
	Close(reason string) error
}
