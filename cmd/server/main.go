package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/voicepanel/internal/adapters/directory"
	router "github.com/dkeye/voicepanel/internal/adapters/http"
	"github.com/dkeye/voicepanel/internal/adapters/identity"
	"github.com/dkeye/voicepanel/internal/app"
	"github.com/dkeye/voicepanel/internal/app/orch"
	"github.com/dkeye/voicepanel/internal/config"
	"github.com/dkeye/voicepanel/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to parse log level")
	}
	zerolog.SetGlobalLevel(lvl)

	resolver, err := identity.New(cfg.Identity)
	if err != nil {
		log.Fatal().Err(err).Msg("identity resolver")
	}
	dir, err := directory.FromConfig(cfg.Directory)
	if err != nil {
		log.Fatal().Err(err).Msg("directory")
	}

	m := metrics.New()
	reg := app.NewRegistry()
	o := &orch.Orchestrator{
		Registry:         reg,
		Rooms:            app.NewRoomManager(),
		Policy:           app.SimplePolicy{Takeover: cfg.Takeover},
		Directory:        dir,
		Metrics:          m,
		DirectoryTimeout: cfg.DirectoryTimeout,
	}

	r := router.SetupRouter(ctx, cfg, o, resolver, m)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("voice panel relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// hijacked websocket connections are not covered by Shutdown
	if err := reg.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("sessions", reg.Len()).Msg("sessions not drained")
	}
	log.Info().Msg("Server exited gracefully")
}
