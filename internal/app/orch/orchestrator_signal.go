package orch

import (
	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/metrics"
	"github.com/dkeye/voicepanel/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Route delivers a signaling message to every session of its recipient in the
// sender's panel, stamped with the sender's identity. It returns the number of
// sessions the frame was queued on; an absent recipient is not an error.
func (o *Orchestrator) Route(from core.MemberSession, sig protocol.Signal) int {
	meta := from.Meta()
	to := sig.Recipient()

	var targets []core.MemberSession
	for _, t := range o.Rooms.Targets(meta.Panel, from.ID()) {
		if t.Meta().User.ID == to {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		o.Metrics.Inc(metrics.DroppedAbsent)
		log.Debug().Str("module", "orch").Str("panel", string(meta.Panel)).Str("type", string(sig.Kind())).
			Str("from", meta.User.ID.String()).Str("to", to.String()).Msg("recipient not in panel, dropped")
		return 0
	}

	frame, err := protocol.Encode(sig.Forward(meta.User))
	if err != nil {
		o.Metrics.Inc(metrics.DroppedMalformed)
		log.Warn().Str("module", "orch").Err(err).Msg("encode signal")
		return 0
	}
	res := o.publish(meta.Panel, targets, frame)
	o.Metrics.Add(metrics.MessagesRouted, uint64(res.SendTo))
	log.Debug().Str("module", "orch").Str("panel", string(meta.Panel)).Str("type", string(sig.Kind())).
		Str("from", meta.User.ID.String()).Str("to", to.String()).Int("sent", res.SendTo).Msg("routed")
	return res.SendTo
}
