// Package protocol is the relay's wire format. Inbound messages are decoded
// once into a closed set of envelope types; outbound messages are plain
// structs marshalled with encoding/json.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/dkeye/voicepanel/internal/domain"
)

type Type string

const (
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice_candidate"
	TypePing         Type = "ping"
	TypeWhoAmI       Type = "whoami"

	TypeUserJoined Type = "user_joined"
	TypeUserLeft   Type = "user_left"
	TypePong       Type = "pong"
	TypeRoomState  Type = "room_state"
)

var ErrMalformed = errors.New("malformed message")

// Envelope is one decoded inbound message. The concrete types are Offer,
// Answer, ICECandidate, Ping, WhoAmI and Unknown.
type Envelope interface {
	Kind() Type
}

// Signal is an envelope addressed to a single peer.
type Signal interface {
	Envelope
	Recipient() domain.UserID
	// Forward builds the outbound message with server-supplied sender fields.
	Forward(from domain.User) any
}

type Offer struct {
	SDP json.RawMessage
	To  domain.UserID
}

type Answer struct {
	SDP json.RawMessage
	To  domain.UserID
}

type ICECandidate struct {
	Candidate json.RawMessage
	To        domain.UserID
}

type Ping struct{}

type WhoAmI struct{}

// Unknown carries a type tag the relay does not handle.
type Unknown struct {
	Type string
}

func (Offer) Kind() Type        { return TypeOffer }
func (Answer) Kind() Type       { return TypeAnswer }
func (ICECandidate) Kind() Type { return TypeICECandidate }
func (Ping) Kind() Type         { return TypePing }
func (WhoAmI) Kind() Type       { return TypeWhoAmI }
func (u Unknown) Kind() Type    { return Type(u.Type) }

func (o Offer) Recipient() domain.UserID        { return o.To }
func (a Answer) Recipient() domain.UserID       { return a.To }
func (c ICECandidate) Recipient() domain.UserID { return c.To }

func (o Offer) Forward(from domain.User) any {
	return OfferOut{Type: TypeOffer, Offer: o.SDP, FromUser: from.ID, FromUsername: from.Username}
}

func (a Answer) Forward(from domain.User) any {
	return AnswerOut{Type: TypeAnswer, Answer: a.SDP, FromUser: from.ID}
}

func (c ICECandidate) Forward(from domain.User) any {
	return ICECandidateOut{Type: TypeICECandidate, Candidate: c.Candidate, FromUser: from.ID}
}

// UserRef is a to_user value. Clients send either a JSON integer or a
// numeric string; both address the same user.
type UserRef domain.UserID

func (r *UserRef) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("to_user %q: %w", b, err)
	}
	*r = UserRef(id)
	return nil
}

type inbound struct {
	Type      *string         `json:"type"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
	ToUser    *UserRef        `json:"to_user"`
}

// Decode parses one inbound frame. Malformed JSON, a missing type or a
// missing required field yields ErrMalformed; an unrecognised type yields
// Unknown with a nil error.
func Decode(data []byte) (Envelope, error) {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if in.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch t := Type(*in.Type); t {
	case TypeOffer:
		to, err := requireSignal(t, "offer", in.Offer, in.ToUser)
		if err != nil {
			return nil, err
		}
		return Offer{SDP: in.Offer, To: to}, nil
	case TypeAnswer:
		to, err := requireSignal(t, "answer", in.Answer, in.ToUser)
		if err != nil {
			return nil, err
		}
		return Answer{SDP: in.Answer, To: to}, nil
	case TypeICECandidate:
		to, err := requireSignal(t, "candidate", in.Candidate, in.ToUser)
		if err != nil {
			return nil, err
		}
		return ICECandidate{Candidate: in.Candidate, To: to}, nil
	case TypePing:
		return Ping{}, nil
	case TypeWhoAmI:
		return WhoAmI{}, nil
	default:
		return Unknown{Type: *in.Type}, nil
	}
}

func requireSignal(t Type, field string, payload json.RawMessage, to *UserRef) (domain.UserID, error) {
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return 0, fmt.Errorf("%w: %s missing %s", ErrMalformed, t, field)
	}
	if to == nil {
		return 0, fmt.Errorf("%w: %s missing to_user", ErrMalformed, t)
	}
	return domain.UserID(*to), nil
}
