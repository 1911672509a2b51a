package protocol

import (
	"encoding/json"

	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/domain"
)

type UserJoined struct {
	Type     Type          `json:"type"`
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
}

type UserLeft struct {
	Type     Type          `json:"type"`
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
}

// RoomState is sent once to a newly admitted session, listing the peers already present.
type RoomState struct {
	Type    Type             `json:"type"`
	PanelID domain.PanelID   `json:"panel_id"`
	Members []core.MemberDTO `json:"members"`
}

type OfferOut struct {
	Type         Type            `json:"type"`
	Offer        json.RawMessage `json:"offer"`
	FromUser     domain.UserID   `json:"from_user"`
	FromUsername string          `json:"from_username"`
}

type AnswerOut struct {
	Type     Type            `json:"type"`
	Answer   json.RawMessage `json:"answer"`
	FromUser domain.UserID   `json:"from_user"`
}

type ICECandidateOut struct {
	Type      Type            `json:"type"`
	Candidate json.RawMessage `json:"candidate"`
	FromUser  domain.UserID   `json:"from_user"`
}

type Pong struct {
	Type Type `json:"type"`
}

type WhoAmIOut struct {
	Type     Type           `json:"type"`
	UserID   domain.UserID  `json:"user_id"`
	Username string         `json:"username"`
	PanelID  domain.PanelID `json:"panel_id"`
	Role     domain.Role    `json:"role"`
}

func NewUserJoined(u domain.User) UserJoined {
	return UserJoined{Type: TypeUserJoined, UserID: u.ID, Username: u.Username}
}

func NewUserLeft(u domain.User) UserLeft {
	return UserLeft{Type: TypeUserLeft, UserID: u.ID, Username: u.Username}
}

func NewRoomState(panel domain.PanelID, peers []core.MemberSession) RoomState {
	members := make([]core.MemberDTO, 0, len(peers))
	for _, p := range peers {
		m := p.Meta()
		members = append(members, core.MemberDTO{ID: m.User.ID, Username: m.User.Username, Role: m.Role})
	}
	return RoomState{Type: TypeRoomState, PanelID: panel, Members: members}
}

func NewPong() Pong { return Pong{Type: TypePong} }

func NewWhoAmI(m *domain.Member) WhoAmIOut {
	return WhoAmIOut{
		Type:     TypeWhoAmI,
		UserID:   m.User.ID,
		Username: m.User.Username,
		PanelID:  m.Panel,
		Role:     m.Role,
	}
}

func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
