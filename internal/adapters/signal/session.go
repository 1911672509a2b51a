package signal

import (
	"sync/atomic"

	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/domain"
)

// State of one websocket connection.
//
//	Connecting -> Authenticated -> Joined -> Closed
//	                            \-> Rejected
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateClosed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

type connSession struct {
	panel  domain.PanelID
	state  atomic.Int32
	member core.MemberSession
	conn   *WsSignalConn
}

func newConnSession(panel domain.PanelID) *connSession {
	return &connSession{panel: panel}
}

func (s *connSession) State() State { return State(s.state.Load()) }

// transition moves from -> to and reports whether this caller won.
func (s *connSession) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}
