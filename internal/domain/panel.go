package domain

import "errors"

const MaxPanelIDLen = 64

var (
	ErrPanelIDEmpty   = errors.New("panel id empty")
	ErrPanelIDTooLong = errors.New("panel id too long")
)

// PanelID is opaque to the relay; the directory mints it (a UUID in practice).
type PanelID string

func ParsePanelID(raw string) (PanelID, error) {
	if raw == "" {
		return "", ErrPanelIDEmpty
	}
	if len(raw) > MaxPanelIDLen {
		return "", ErrPanelIDTooLong
	}
	return PanelID(raw), nil
}

// Panel is the directory's view of a panel.
type Panel struct {
	ID         PanelID `json:"id"`
	Title      string  `json:"title"`
	Topic      string  `json:"topic"`
	HostID     UserID  `json:"host_id"`
	Active     bool    `json:"is_active"`
	MaxMembers int     `json:"max_members"`
}
