package signal

import (
	"github.com/dkeye/voicepanel/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(s *connSession) {
	ctl.reply(s, protocol.NewPong())
}

func (ctl *SignalWSController) handleWhoAmI(s *connSession) {
	ctl.reply(s, protocol.NewWhoAmI(s.member.Meta()))
}

// reply queues a control response for the sender only.
func (ctl *SignalWSController) reply(s *connSession, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("reply marshal")
		return
	}
	if err := s.conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.member.ID())).Msg("reply dropped")
	}
}
