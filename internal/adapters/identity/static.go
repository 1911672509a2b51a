package identity

import (
	"context"
	"fmt"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/config"
	"github.com/dkeye/voicepanel/internal/domain"
)

// StaticResolver resolves tokens from a fixed table loaded from config.
type StaticResolver struct {
	users map[string]domain.User
}

func NewStaticResolver(entries []config.StaticUser) (*StaticResolver, error) {
	users := make(map[string]domain.User, len(entries))
	for _, e := range entries {
		u, err := domain.NewUser(domain.UserID(e.ID), e.Username)
		if err != nil {
			return nil, fmt.Errorf("static user %d: %w", e.ID, err)
		}
		users[e.Token] = u
	}
	return &StaticResolver{users: users}, nil
}

func (r *StaticResolver) Resolve(_ context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.Anonymous, nil
	}
	u, ok := r.users[token]
	if !ok {
		return domain.Anonymous, app.ErrInvalidToken
	}
	return u, nil
}
