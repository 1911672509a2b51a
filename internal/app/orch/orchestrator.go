package orch

import (
	"time"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/dkeye/voicepanel/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     *app.RoomManager
	Policy    app.Policy
	Directory app.Directory
	Metrics   *metrics.Metrics

	// DirectoryTimeout bounds role lookups and panel deactivation.
	DirectoryTimeout time.Duration
}

// publish fans data out to targets and applies the backpressure policy to each failed recipient.
func (o *Orchestrator) publish(panel domain.PanelID, targets []core.MemberSession, data core.Frame) core.PublishResult {
	res := core.Publish(targets, data)
	for _, d := range res.Dropped {
		o.Metrics.Inc(metrics.SendFailures)
		log.Warn().Str("module", "orch").Str("panel", string(panel)).Str("sid", string(d.Session.ID())).
			Err(d.Err).Msg("send failed")
		if o.Policy == nil {
			continue
		}
		switch o.Policy.OnBackPressure(d.Session, d.Err) {
		case app.KickMember:
			if o.Registry.Cancel(d.Session.ID(), app.ErrEvicted) {
				o.Metrics.Inc(metrics.SessionsEvicted)
			}
		case app.DropFrame, app.NoAction:
		}
	}
	return res
}
