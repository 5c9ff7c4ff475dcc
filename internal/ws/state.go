package ws

import "sync/atomic"

// ConnState represents the lifecycle state of a managed connection.
type ConnState int32

// Connection states. A connection starts in StateConnecting, alternates
// between StateOpen and StateReconnecting for its working life, and ends
// in StateClosed. StateClosed is terminal.
const (
	// StateConnecting indicates the first handshake has not succeeded yet.
	StateConnecting ConnState = iota
	// StateOpen indicates an active connection delivering frames.
	StateOpen
	// StateReconnecting indicates the connection was lost and is being
	// re-established with backoff. Subscriptions are retained.
	StateReconnecting
	// StateClosed indicates the connection was shut down by its owner.
	StateClosed
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	return [...]string{
		"connecting",
		"open",
		"reconnecting",
		"closed",
	}[s]
}

// State provides atomic access to a ConnState value. It is written only
// by the connection's run loop and read by any goroutine.
type State struct {
	state atomic.Int32
}

// Load returns the current connection state.
func (s *State) Load() ConnState {
	return ConnState(s.state.Load())
}

// Store sets the connection state to the given value.
func (s *State) Store(state ConnState) {
	s.state.Store(int32(state))
}
