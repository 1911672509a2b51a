package app

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Panel   domain.PanelID
	Session core.MemberSession
	Cancel  context.CancelCauseFunc
}

// Registry tracks every admitted session and how to stop it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	draining bool
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

// Bind fails with ErrDraining once Drain has started.
func (r *Registry) Bind(sess core.MemberSession, cancel context.CancelCauseFunc) error {
	sid := sess.ID()
	panel := sess.Meta().Panel
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return ErrDraining
	}
	r.sessions[sid] = &sessionEntry{Panel: panel, Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("panel", string(panel)).
		Str("user", sess.Meta().User.ID.String()).Msg("bound session")
	return nil
}

func (r *Registry) Unbind(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) PanelOf(sid core.SessionID) (domain.PanelID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	return e.Panel, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the session's event loop with the given cause. It never blocks.
func (r *Registry) Cancel(sid core.SessionID, cause error) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel(cause)
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).AnErr("cause", cause).Msg("canceled session")
	return true
}

// Drain refuses new sessions, cancels all bound ones with ErrShutdown and
// waits until every session has unbound or ctx expires.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	for _, e := range r.sessions {
		if e.Cancel != nil {
			e.Cancel(ErrShutdown)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	log.Info().Str("module", "app.sessions").Int("sessions", n).Msg("draining")

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if r.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
