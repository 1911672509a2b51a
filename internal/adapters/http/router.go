package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/voicepanel/internal/adapters/signal"
	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/app/orch"
	"github.com/dkeye/voicepanel/internal/config"
	"github.com/dkeye/voicepanel/internal/domain"
	"github.com/dkeye/voicepanel/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const sessionTokenKey = "token"

// CredentialMiddleware takes the bearer token from ?token= and falls back to
// the cookie session.
func CredentialMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if v, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
				token = v
			}
		}
		c.Set(signal.CredentialKey, token)
		c.Next()
	}
}

type api struct {
	orch     *orch.Orchestrator
	resolver app.IdentityResolver
	cfg      *config.Config
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, resolver app.IdentityResolver, m *metrics.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// websocket clients do not follow redirects
	r.RedirectTrailingSlash = false
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, MaxAge: 3600 * 24 * 7})
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(CredentialMiddleware())

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, resolver, m, signal.OptionsFromConfig(cfg))
	ws := func(c *gin.Context) { ctrl.HandleSignal(ctx, c) }
	r.GET("/ws/voice/panel/:panel_id", ws)
	r.GET("/ws/voice/panel/:panel_id/", ws)

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(metrics.PrometheusHandler(m)))

	h := &api{orch: o, resolver: resolver, cfg: cfg}
	g := r.Group("/api")
	g.GET("/panels", h.listPanels)
	g.GET("/panels/:panel_id/members", h.listMembers)
	g.GET("/ice-servers", h.iceServers)
	g.POST("/session", h.login)
	g.DELETE("/session", h.logout)

	return r
}

func (h *api) listPanels(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Rooms.List())
}

func (h *api) listMembers(c *gin.Context) {
	panel, err := domain.ParsePanelID(c.Param("panel_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, ok := h.orch.Rooms.Get(panel)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live room for panel"})
		return
	}
	c.JSON(http.StatusOK, room.MembersSnapshot())
}

func (h *api) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": h.cfg.WebRTC()})
}

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *api) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.ResolveTimeout)
	defer cancel()
	user, err := h.resolver.Resolve(ctx, req.Token)
	if err != nil || !user.Authenticated() {
		status := http.StatusUnauthorized
		if err != nil && !errors.Is(err, app.ErrInvalidToken) {
			status = http.StatusBadGateway
		}
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session login rejected")
		c.JSON(status, gin.H{"error": "invalid token"})
		return
	}

	sess := sessions.Default(c)
	sess.Set(sessionTokenKey, req.Token)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session not saved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "username": user.Username})
}

func (h *api) logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Delete(sessionTokenKey)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	c.Status(http.StatusNoContent)
}
