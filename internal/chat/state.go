package chat

import "sync/atomic"

// State - step of session lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateNamed
	StateActive
	StateTransferring
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNamed:
		return "named"
	case StateActive:
		return "active"
	case StateTransferring:
		return "transferring"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// stateHolder - state readable from other goroutines (admin listing, shutdown).
type stateHolder struct {
	v atomic.Int32
}

func (h *stateHolder) load() State {
	return State(h.v.Load())
}

func (h *stateHolder) store(s State) {
	h.v.Store(int32(s))
}
