package app

import (
	"context"
	"errors"

	"github.com/dkeye/voicepanel/internal/domain"
)

// Cancellation causes attached to a session context. The transport maps them to close codes.
var (
	ErrSuperseded = errors.New("superseded by a newer session")
	ErrEvicted    = errors.New("evicted: outbound queue full")
	ErrShutdown   = errors.New("server shutting down")
	ErrDraining   = errors.New("registry is draining")
)

// Identity resolution errors.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrIdentityUnavailable = errors.New("identity service unavailable")
)

// Directory errors.
var (
	ErrPanelNotFound  = errors.New("panel not found")
	ErrMemberNotFound = errors.New("member not found")
)

// IdentityResolver maps a bearer credential to an account.
// A nil error with domain.Anonymous means the credential was empty.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (domain.User, error)
}

// Directory is the panel/membership store owned by the main application.
type Directory interface {
	Panel(ctx context.Context, id domain.PanelID) (domain.Panel, error)
	MemberRole(ctx context.Context, panel domain.PanelID, user domain.UserID) (domain.Role, error)
	DeactivatePanel(ctx context.Context, id domain.PanelID) error
}
