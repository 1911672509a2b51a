package core

import (
	"github.com/dkeye/voicepanel/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []Drop
}

// Drop is a single failed delivery.
type Drop struct {
	Session MemberSession
	Err     error
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
}

// RoomService is the live membership of one panel.
// It owns the membership set but never touches transport resources.
// Members are kept in join order.
type RoomService interface {
	Panel() domain.PanelID
	MemberCount() int
	MembersSnapshot() []MemberDTO

	AddMember(ms MemberSession) bool
	RemoveMember(sid SessionID) (MemberSession, bool)
	Has(sid SessionID) bool
	SessionsOf(user domain.UserID) []MemberSession
	Targets(exclude SessionID) []MemberSession
}

type RoomInfo struct {
	Panel       domain.PanelID `json:"panel_id"`
	MemberCount int            `json:"member_count"`
}

// Publish sends data to every target and isolates failures per recipient.
func Publish(targets []MemberSession, data Frame) PublishResult {
	res := PublishResult{}
	for _, m := range targets {
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, Drop{Session: m, Err: err})
			continue
		}
		res.SendTo++
	}
	return res
}
