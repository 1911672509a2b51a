package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/app/orch"
	"github.com/dkeye/voicepanel/internal/config"
	"github.com/dkeye/voicepanel/internal/core"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/dkeye/voicepanel/internal/metrics"
	"github.com/dkeye/voicepanel/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// CredentialKey is the gin context key holding the raw bearer token.
const CredentialKey = "credential"

type Options struct {
	ReadLimit      int64
	SendBuffer     int
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	ResolveTimeout time.Duration
	RateMessages   int
	RateInterval   time.Duration
	AllowedOrigins []string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:      cfg.ReadLimit,
		SendBuffer:     cfg.SendBuffer,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		ResolveTimeout: cfg.ResolveTimeout,
		RateMessages:   cfg.RateLimit.Messages,
		RateInterval:   cfg.RateLimit.Interval,
		AllowedOrigins: cfg.AllowedOrigins,
	}
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Resolver app.IdentityResolver
	Metrics  *metrics.Metrics

	opts     Options
	origins  OriginPolicy
	limiter  *RoomRateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, resolver app.IdentityResolver, m *metrics.Metrics, opts Options) *SignalWSController {
	origins := NewOriginPolicy(opts.AllowedOrigins)
	return &SignalWSController{
		Orch:     o,
		Resolver: resolver,
		Metrics:  m,
		opts:     opts,
		origins:  origins,
		limiter:  NewRoomRateLimiter(opts.RateMessages, opts.RateInterval),
		upgrader: websocket.Upgrader{CheckOrigin: origins.Check},
	}
}

// WsSignalConn is the send half of one websocket. Frames are queued on send
// and written by the connection's event loop, which is the only writer.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal authenticates, upgrades and admits one panel connection.
// ctx is the server lifetime; the session ends when it is cancelled.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	panel, err := domain.ParsePanelID(c.Param("panel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// a foreign page must not ride the visitor's session cookie
	if !ctl.origins.Check(c.Request) {
		ctl.Metrics.Inc(metrics.SessionsRejected)
		log.Warn().Str("module", "signal").Str("panel", string(panel)).
			Str("origin", c.GetHeader("Origin")).Msg("origin not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	s := newConnSession(panel)
	user := ctl.authenticate(c.Request.Context(), c.GetString(CredentialKey))
	s.transition(StateConnecting, StateAuthenticated)

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("panel", string(panel)).Msg("ws upgrade")
		return
	}

	if !user.Authenticated() {
		s.transition(StateAuthenticated, StateRejected)
		ctl.Metrics.Inc(metrics.SessionsRejected)
		log.Info().Str("module", "signal").Str("panel", string(panel)).Msg("anonymous connection rejected")
		writeClose(ws, protocol.CloseAuthRejected, "authentication required", ctl.opts.WriteWait)
		_ = ws.Close()
		return
	}

	role := ctl.Orch.LookupRole(c.Request.Context(), panel, user.ID)
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	sid := core.SessionID(uuid.NewString())
	s.member = core.NewMemberSession(sid, domain.NewMember(user, panel, role), conn)
	s.conn = conn

	sctx, cancel := context.WithCancelCause(ctx)
	if _, err := ctl.Orch.Admit(s.member, cancel); err != nil {
		cancel(err)
		s.transition(StateAuthenticated, StateClosed)
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("admission refused")
		writeClose(ws, websocket.CloseGoingAway, "server shutting down", ctl.opts.WriteWait)
		conn.Close()
		return
	}
	s.transition(StateAuthenticated, StateJoined)
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("panel", string(panel)).
		Str("user", user.ID.String()).Msg("new WS connection")

	go ctl.run(sctx, s)
}

func (ctl *SignalWSController) authenticate(ctx context.Context, token string) domain.User {
	if token == "" || ctl.Resolver == nil {
		return domain.Anonymous
	}
	if ctl.opts.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ctl.opts.ResolveTimeout)
		defer cancel()
	}
	user, err := ctl.Resolver.Resolve(ctx, token)
	if err != nil {
		ctl.Metrics.Inc(metrics.IdentityFailures)
		log.Warn().Err(err).Str("module", "signal").Msg("credential not resolved")
		return domain.Anonymous
	}
	return user
}
