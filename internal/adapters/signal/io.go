package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/metrics"
	"github.com/dkeye/voicepanel/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// run is the connection's event loop. It is the only goroutine that writes to
// the socket and the only one that dispatches inbound messages, so nothing is
// processed once ctx is done.
func (ctl *SignalWSController) run(ctx context.Context, s *connSession) {
	loopCtx, stop := context.WithCancel(ctx)
	inbound := make(chan core.Frame)
	readErr := make(chan error, 1)
	go ctl.readPump(loopCtx, s, inbound, readErr)

	ping := time.NewTicker(ctl.opts.PingPeriod)
	var cause error
	defer func() {
		ping.Stop()
		stop()
		ctl.finish(s, cause)
	}()

	for {
		select {
		case <-ctx.Done():
			cause = context.Cause(ctx)
			return
		case err := <-readErr:
			cause = err
			return
		case data := <-inbound:
			if ctx.Err() != nil {
				cause = context.Cause(ctx)
				return
			}
			ctl.dispatch(s, data)
		case data, ok := <-s.conn.send:
			if !ok {
				cause = core.ErrClosed
				return
			}
			if err := ctl.write(s.conn.conn, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.member.ID())).Msg("write error")
				cause = err
				return
			}
		case <-ping.C:
			if err := s.conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				cause = err
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, s *connSession, inbound chan<- core.Frame, errc chan<- error) {
	ws := s.conn.conn
	ws.SetReadLimit(ctl.opts.ReadLimit)
	extend := func() error { return ws.SetReadDeadline(time.Now().Add(ctl.opts.PongWait)) }
	_ = extend()
	ws.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		_ = extend()
		select {
		case inbound <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (ctl *SignalWSController) write(ws *websocket.Conn, data core.Frame) error {
	if err := ws.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (ctl *SignalWSController) dispatch(s *connSession, data core.Frame) {
	ms := s.member
	user := ms.Meta().User
	if !ctl.limiter.Allow(user.ID) {
		ctl.Metrics.Inc(metrics.DroppedRateLimited)
		log.Warn().Str("module", "signal").Str("sid", string(ms.ID())).Str("user", user.ID.String()).Msg("rate limited")
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		ctl.Metrics.Inc(metrics.DroppedMalformed)
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(ms.ID())).Msg("bad message")
		return
	}

	switch e := env.(type) {
	case protocol.Signal:
		ctl.Orch.Route(ms, e)
	case protocol.Ping:
		ctl.handlePing(s)
	case protocol.WhoAmI:
		ctl.handleWhoAmI(s)
	default:
		ctl.Metrics.Inc(metrics.DroppedUnknown)
		log.Debug().Str("module", "signal").Str("sid", string(ms.ID())).Str("type", string(env.Kind())).Msg("unknown signal")
	}
}

// finish deregisters the session, announces the departure and closes the socket.
func (ctl *SignalWSController) finish(s *connSession, cause error) {
	if !s.transition(StateJoined, StateClosed) {
		return
	}
	ms := s.member
	ctl.Orch.Leave(ms, cause)

	if code, text, ok := closeFor(cause); ok {
		writeClose(s.conn.conn, code, text, ctl.opts.WriteWait)
	}
	s.conn.Close()
	ctl.Metrics.Inc(metrics.SessionsClosed)
	log.Info().Str("module", "signal").Str("sid", string(ms.ID())).Str("panel", string(s.panel)).
		AnErr("cause", cause).Msg("connection closed")
}

// closeFor maps a loop exit cause to the close frame we send, if any.
func closeFor(cause error) (int, string, bool) {
	var ce *websocket.CloseError
	switch {
	case errors.Is(cause, app.ErrSuperseded):
		return protocol.CloseSuperseded, "superseded by a newer session", true
	case errors.Is(cause, app.ErrEvicted):
		return protocol.CloseEvicted, "too slow", true
	case errors.Is(cause, app.ErrShutdown), errors.Is(cause, context.Canceled):
		return websocket.CloseGoingAway, "server shutting down", true
	case errors.As(cause, &ce):
		// the peer's close was already answered by the default close handler
		return 0, "", false
	case errors.Is(cause, websocket.ErrReadLimit):
		return websocket.CloseMessageTooBig, "message too big", true
	}
	return websocket.CloseNormalClosure, "", true
}

func writeClose(ws *websocket.Conn, code int, text string, wait time.Duration) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
}
