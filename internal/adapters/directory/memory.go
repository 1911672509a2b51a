package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/config"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MemStore is an in-process Directory for development and tests.
// The panel host always has RoleHost.
type MemStore struct {
	mx     sync.RWMutex
	panels map[domain.PanelID]domain.Panel
	roles  map[domain.PanelID]map[domain.UserID]domain.Role
}

func NewMemStore() *MemStore {
	return &MemStore{
		panels: make(map[domain.PanelID]domain.Panel),
		roles:  make(map[domain.PanelID]map[domain.UserID]domain.Role),
	}
}

// FromConfig seeds a store. Panels without an id get a fresh UUID.
func FromConfig(cfg config.Directory) (*MemStore, error) {
	ms := NewMemStore()
	for _, p := range cfg.Panels {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		panel, err := domain.ParsePanelID(id)
		if err != nil {
			return nil, fmt.Errorf("directory panel %q: %w", p.Title, err)
		}
		ms.PutPanel(domain.Panel{
			ID:         panel,
			Title:      p.Title,
			Topic:      p.Topic,
			HostID:     domain.UserID(p.HostID),
			Active:     p.Active,
			MaxMembers: p.MaxMembers,
		})
	}
	for _, m := range cfg.Members {
		role := domain.Role(m.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("directory member %d in %q: unknown role %q", m.UserID, m.Panel, m.Role)
		}
		if err := ms.SetRole(domain.PanelID(m.Panel), domain.UserID(m.UserID), role); err != nil {
			return nil, err
		}
	}
	log.Info().Str("module", "directory").Int("panels", len(cfg.Panels)).Int("members", len(cfg.Members)).Msg("memory directory seeded")
	return ms, nil
}

func (ms *MemStore) PutPanel(p domain.Panel) {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	ms.panels[p.ID] = p
	if _, ok := ms.roles[p.ID]; !ok {
		ms.roles[p.ID] = make(map[domain.UserID]domain.Role)
	}
	if p.HostID > 0 {
		ms.roles[p.ID][p.HostID] = domain.RoleHost
	}
}

func (ms *MemStore) SetRole(panel domain.PanelID, user domain.UserID, role domain.Role) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	roles, ok := ms.roles[panel]
	if !ok {
		return fmt.Errorf("%w: %s", app.ErrPanelNotFound, panel)
	}
	roles[user] = role
	return nil
}

func (ms *MemStore) Panel(_ context.Context, id domain.PanelID) (domain.Panel, error) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()
	p, ok := ms.panels[id]
	if !ok {
		return domain.Panel{}, fmt.Errorf("%w: %s", app.ErrPanelNotFound, id)
	}
	return p, nil
}

func (ms *MemStore) MemberRole(_ context.Context, panel domain.PanelID, user domain.UserID) (domain.Role, error) {
	ms.mx.RLock()
	defer ms.mx.RUnlock()
	roles, ok := ms.roles[panel]
	if !ok {
		return "", fmt.Errorf("%w: %s", app.ErrPanelNotFound, panel)
	}
	role, ok := roles[user]
	if !ok {
		return "", fmt.Errorf("%w: user %s in %s", app.ErrMemberNotFound, user, panel)
	}
	return role, nil
}

func (ms *MemStore) DeactivatePanel(_ context.Context, id domain.PanelID) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()
	p, ok := ms.panels[id]
	if !ok {
		return fmt.Errorf("%w: %s", app.ErrPanelNotFound, id)
	}
	p.Active = false
	ms.panels[id] = p
	log.Info().Str("module", "directory").Str("panel", string(id)).Msg("panel deactivated")
	return nil
}
