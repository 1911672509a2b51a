package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/rs/zerolog/log"
)

// HTTPResolver asks the main application's profile endpoint who owns a token.
// The token is sent as "Authorization: Token <token>" and the endpoint answers
// {"id": ..., "username": ...}.
type HTTPResolver struct {
	URL    string
	Client *http.Client
}

func NewHTTPResolver(url string) *HTTPResolver {
	return &HTTPResolver{URL: url, Client: &http.Client{}}
}

type profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.Anonymous, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("%w: %v", app.ErrIdentityUnavailable, err)
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("%w: %v", app.ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return domain.Anonymous, app.ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		log.Warn().Str("module", "identity").Int("status", resp.StatusCode).Msg("identity endpoint error")
		return domain.Anonymous, fmt.Errorf("%w: status %d", app.ErrIdentityUnavailable, resp.StatusCode)
	}

	var p profile
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&p); err != nil {
		return domain.Anonymous, fmt.Errorf("%w: decode profile: %v", app.ErrIdentityUnavailable, err)
	}
	u, err := domain.NewUser(domain.UserID(p.ID), p.Username)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("%w: %v", app.ErrInvalidToken, err)
	}
	return u, nil
}
