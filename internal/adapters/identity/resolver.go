package identity

import (
	"fmt"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/config"
)

// New builds the resolver selected by cfg.Mode.
func New(cfg config.Identity) (app.IdentityResolver, error) {
	switch cfg.Mode {
	case config.IdentityStatic:
		r, err := NewStaticResolver(cfg.Users)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.IdentityHTTP:
		return NewHTTPResolver(cfg.URL), nil
	}
	return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
}
