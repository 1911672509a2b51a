package core

import (
	"slices"
	"sync"

	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	panel domain.PanelID
	mu    sync.RWMutex
	bySID map[SessionID]MemberSession
	order []SessionID
}

func NewRoomService(panel domain.PanelID) RoomService {
	return &roomImpl{
		panel: panel,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *roomImpl) Panel() domain.PanelID { return r.panel }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// AddMember reports false if the session is already a member.
func (r *roomImpl) AddMember(ms MemberSession) bool {
	sid := ms.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; ok {
		return false
	}
	r.bySID[sid] = ms
	r.order = append(r.order, sid)
	log.Debug().Str("module", "core.room").Str("panel", string(r.panel)).Str("sid", string(sid)).
		Str("user", ms.Meta().User.ID.String()).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(sid SessionID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return nil, false
	}
	delete(r.bySID, sid)
	if i := slices.Index(r.order, sid); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	log.Debug().Str("module", "core.room").Str("panel", string(r.panel)).Str("sid", string(sid)).Msg("member removed")
	return ms, true
}

func (r *roomImpl) Has(sid SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySID[sid]
	return ok
}

func (r *roomImpl) SessionsOf(user domain.UserID) []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []MemberSession
	for _, sid := range r.order {
		if ms := r.bySID[sid]; ms.Meta().User.ID == user {
			out = append(out, ms)
		}
	}
	return out
}

// Targets returns a snapshot of all members except exclude, in join order.
func (r *roomImpl) Targets(exclude SessionID) []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.order))
	for _, sid := range r.order {
		if sid == exclude {
			continue
		}
		out = append(out, r.bySID[sid])
	}
	return out
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.order))
	for _, sid := range r.order {
		m := r.bySID[sid].Meta()
		out = append(out, MemberDTO{ID: m.User.ID, Username: m.User.Username, Role: m.Role})
	}
	return out
}
