package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/dkeye/voicepanel/internal/metrics"
	"github.com/dkeye/voicepanel/internal/protocol"
	"github.com/rs/zerolog/log"
)

// LookupRole asks the directory for the user's role in the panel.
// Unknown members and directory failures yield RoleListener.
func (o *Orchestrator) LookupRole(ctx context.Context, panel domain.PanelID, user domain.UserID) domain.Role {
	if o.Directory == nil {
		return domain.RoleListener
	}
	ctx, cancel := o.directoryCtx(ctx)
	defer cancel()
	role, err := o.Directory.MemberRole(ctx, panel, user)
	if err != nil {
		log.Debug().Str("module", "orch").Str("panel", string(panel)).Str("user", user.String()).
			Err(err).Msg("role lookup failed, defaulting to listener")
		return domain.RoleListener
	}
	if !role.Valid() {
		return domain.RoleListener
	}
	return role
}

// Admit registers ms, sends it the current roster and announces it to the
// panel. It returns the peers that were present at the moment of joining.
// Older sessions of the same user are cancelled with app.ErrSuperseded when
// the policy asks for it.
func (o *Orchestrator) Admit(ms core.MemberSession, cancel context.CancelCauseFunc) ([]core.MemberSession, error) {
	if err := o.Registry.Bind(ms, cancel); err != nil {
		return nil, err
	}

	supersede := o.Policy != nil && o.Policy.OnDuplicate(ms) == app.Supersede
	// the newcomer gets its roster before any later presence frame for the
	// panel, and the peers hear about it before any later leave
	res := o.Rooms.Join(ms, supersede, func(jr app.JoinResult) {
		panel := ms.Meta().Panel
		if frame, err := protocol.Encode(protocol.NewRoomState(panel, jr.Peers)); err == nil {
			o.publish(panel, []core.MemberSession{ms}, frame)
		}
		if len(jr.Peers) > 0 {
			o.broadcastPresence(panel, jr.Peers, protocol.NewUserJoined(ms.Meta().User))
		}
	})
	for _, old := range res.Replaced {
		if o.Registry.Cancel(old.ID(), app.ErrSuperseded) {
			o.Metrics.Inc(metrics.SessionsSuperseded)
		}
		log.Info().Str("module", "orch").Str("panel", string(ms.Meta().Panel)).Str("sid", string(old.ID())).
			Str("by", string(ms.ID())).Msg("session superseded")
	}
	o.Metrics.Inc(metrics.SessionsAdmitted)
	log.Info().Str("module", "orch").Str("panel", string(ms.Meta().Panel)).Str("sid", string(ms.ID())).
		Str("user", ms.Meta().User.ID.String()).Str("role", string(ms.Meta().Role)).
		Int("peers", len(res.Peers)).Msg("admitted")
	return res.Peers, nil
}

// Leave removes ms from its room and tells the remaining members. A session
// that was already removed, e.g. superseded, produces no notification.
// cause is why the session ended; a host leaving during shutdown keeps its panel active.
func (o *Orchestrator) Leave(ms core.MemberSession, cause error) {
	defer o.Registry.Unbind(ms.ID())

	meta := ms.Meta()
	removed, remaining := o.Rooms.Leave(meta.Panel, ms.ID(), func(others []core.MemberSession) {
		if meta.User.Authenticated() {
			o.broadcastPresence(meta.Panel, others, protocol.NewUserLeft(meta.User))
		}
	})
	if !removed {
		return
	}
	log.Info().Str("module", "orch").Str("panel", string(meta.Panel)).Str("sid", string(ms.ID())).
		Str("user", meta.User.ID.String()).Msg("left")

	shutdown := errors.Is(cause, app.ErrShutdown) || errors.Is(cause, context.Canceled)
	if meta.Role == domain.RoleHost && !shutdown && !hasUser(remaining, meta.User.ID) {
		go o.deactivateIfHost(meta.Panel, meta.User.ID)
	}
}

func (o *Orchestrator) broadcastPresence(panel domain.PanelID, targets []core.MemberSession, msg any) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Str("module", "orch").Err(err).Msg("encode presence")
		return
	}
	o.Metrics.Inc(metrics.PresenceBroadcasts)
	o.publish(panel, targets, frame)
}

// deactivateIfHost marks the panel inactive when its host disconnects.
func (o *Orchestrator) deactivateIfHost(panel domain.PanelID, user domain.UserID) {
	if o.Directory == nil {
		return
	}
	ctx, cancel := o.directoryCtx(context.Background())
	defer cancel()

	p, err := o.Directory.Panel(ctx, panel)
	if err != nil {
		o.Metrics.Inc(metrics.DirectoryFailures)
		log.Warn().Str("module", "orch").Str("panel", string(panel)).Err(err).Msg("panel lookup failed")
		return
	}
	if p.HostID != user || !p.Active {
		return
	}
	if err := o.Directory.DeactivatePanel(ctx, panel); err != nil {
		o.Metrics.Inc(metrics.DirectoryFailures)
		log.Warn().Str("module", "orch").Str("panel", string(panel)).Err(err).Msg("deactivate panel failed")
		return
	}
	o.Metrics.Inc(metrics.PanelsDeactivated)
	log.Info().Str("module", "orch").Str("panel", string(panel)).Msg("host left, panel deactivated")
}

func (o *Orchestrator) directoryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := o.DirectoryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func hasUser(sessions []core.MemberSession, user domain.UserID) bool {
	for _, s := range sessions {
		if s.Meta().User.ID == user {
			return true
		}
	}
	return false
}
