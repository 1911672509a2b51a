package app

import (
	"errors"

	"github.com/dkeye/voicepanel/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

type DuplicateAction int

const (
	Supersede DuplicateAction = iota
	AllowDuplicate
)

type Policy interface {
	// OnBackPressure is consulted for each recipient whose send failed.
	OnBackPressure(member core.MemberSession, err error) BackpressureAction
	// OnDuplicate decides what happens to older sessions of the same user in the same panel.
	OnDuplicate(member core.MemberSession) DuplicateAction
}

type SimplePolicy struct {
	Takeover bool
}

func (SimplePolicy) OnBackPressure(_ core.MemberSession, err error) BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return KickMember
	}
	// a closed connection is already on its way out
	return NoAction
}

func (p SimplePolicy) OnDuplicate(core.MemberSession) DuplicateAction {
	if p.Takeover {
		return Supersede
	}
	return AllowDuplicate
}
