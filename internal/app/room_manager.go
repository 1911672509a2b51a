package app

import (
	"slices"
	"sync"

	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager owns the live rooms. Join and Leave run under the manager's
// write lock so that membership changes and the peer snapshots taken with
// them are linearizable: a peer either sees a member's join and later its
// leave, or neither. The announce callbacks run inside the same critical
// section, so frames they queue are ordered with the membership change.
// They must not block or call back into the manager.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.PanelID]core.RoomService
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.PanelID]core.RoomService)}
}

// JoinResult describes one admission.
type JoinResult struct {
	Room core.RoomService
	// Peers are the members present at the moment of joining, in join order.
	Peers []core.MemberSession
	// Replaced are older sessions of the same user removed by supersede.
	Replaced []core.MemberSession
	// Added is false when the session was already a member.
	Added bool
}

// Join adds ms to its panel's room, creating the room on first use.
// With supersede set, other sessions of the same user are removed first.
// announce, if set, sees the result before the lock is released.
func (m *RoomManager) Join(ms core.MemberSession, supersede bool, announce func(JoinResult)) JoinResult {
	panel := ms.Meta().Panel
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[panel]
	if !ok {
		room = core.NewRoomService(panel)
		m.rooms[panel] = room
		log.Info().Str("module", "app.rooms").Str("panel", string(panel)).Msg("room created")
	}

	res := JoinResult{Room: room}
	if supersede {
		for _, old := range room.SessionsOf(ms.Meta().User.ID) {
			if old.ID() == ms.ID() {
				continue
			}
			if _, removed := room.RemoveMember(old.ID()); removed {
				res.Replaced = append(res.Replaced, old)
			}
		}
	}
	res.Peers = room.Targets(ms.ID())
	res.Added = room.AddMember(ms)
	if announce != nil {
		announce(res)
	}
	return res
}

// Leave removes sid from the panel's room. Remaining is the membership right
// after removal; it is empty when nothing was removed. Empty rooms are dropped.
// announce runs under the lock, and only when sid was removed and others remain.
func (m *RoomManager) Leave(panel domain.PanelID, sid core.SessionID, announce func(remaining []core.MemberSession)) (removed bool, remaining []core.MemberSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[panel]
	if !ok {
		return false, nil
	}
	if _, removed = room.RemoveMember(sid); !removed {
		return false, nil
	}
	if room.MemberCount() == 0 {
		delete(m.rooms, panel)
		log.Info().Str("module", "app.rooms").Str("panel", string(panel)).Msg("room dropped")
		return true, nil
	}
	remaining = room.Targets("")
	if announce != nil {
		announce(remaining)
	}
	return true, remaining
}

// Targets is a snapshot of the panel's members except exclude.
func (m *RoomManager) Targets(panel domain.PanelID, exclude core.SessionID) []core.MemberSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[panel]
	if !ok {
		return nil
	}
	return room.Targets(exclude)
}

func (m *RoomManager) Get(panel domain.PanelID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[panel]
	return room, ok
}

// List returns the live rooms sorted by panel id.
func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for panel, r := range m.rooms {
		out = append(out, core.RoomInfo{Panel: panel, MemberCount: r.MemberCount()})
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int {
		switch {
		case a.Panel < b.Panel:
			return -1
		case a.Panel > b.Panel:
			return 1
		}
		return 0
	})
	return out
}
