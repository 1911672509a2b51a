package core

import "errors"

// Frame is a raw signaling payload: one websocket text message.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SignalConnection abstracts the per-connection send path.
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full queue yields ErrBackpressure, a closed one ErrClosed.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
