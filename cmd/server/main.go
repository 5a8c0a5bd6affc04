package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/voicenet/internal/adapters/http"
	"github.com/dkeye/voicenet/internal/adapters/rtc"
	"github.com/dkeye/voicenet/internal/adapters/sim"
	"github.com/dkeye/voicenet/internal/adapters/store"
	"github.com/dkeye/voicenet/internal/adapters/token"
	"github.com/dkeye/voicenet/internal/app"
	"github.com/dkeye/voicenet/internal/app/orch"
	"github.com/dkeye/voicenet/internal/config"
	"github.com/dkeye/voicenet/internal/core"
	"github.com/dkeye/voicenet/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("voicenet stopped")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	nets, err := cfg.VoiceNets()
	if err != nil {
		return err
	}
	catalog, err := app.NewNetCatalog(nets...)
	if err != nil {
		return err
	}
	users, err := cfg.Users()
	if err != nil {
		return err
	}
	members := app.NewMemberDirectory(users...)

	minTier, err := domain.ParseTier(cfg.Session.MinFocusedTier)
	if err != nil {
		return err
	}
	backend, err := cfg.Backend()
	if err != nil {
		return err
	}

	presence, err := store.Open(store.Config{Path: cfg.Store.Path, TTL: cfg.Store.TTL})
	if err != nil {
		return fmt.Errorf("open roster store: %w", err)
	}
	defer func() {
		if err := presence.Close(); err != nil {
			log.Error().Err(err).Msg("roster store close")
		}
	}()

	issuer := token.NewJWTIssuer(token.Config{
		Endpoint:  cfg.Voice.Endpoint,
		APIKey:    cfg.Voice.APIKey,
		APISecret: cfg.Voice.APISecret,
		TTL:       cfg.Voice.TokenTTL,
	})

	ocfg := orch.DefaultConfig()
	ocfg.HeartbeatInterval = cfg.Session.HeartbeatInterval
	ocfg.PreferredBackend = backend
	ocfg.RetryCredentialErrors = cfg.Session.RetryCredentialErrors
	ocfg.SpeakingHold = cfg.Session.SpeakingHold
	ocfg.TeardownTimeout = cfg.Session.TeardownTimeout
	ocfg.Reconnect = orch.ReconnectConfig{
		MaxAttempts:  cfg.Session.Reconnect.MaxAttempts,
		InitialDelay: cfg.Session.Reconnect.InitialDelay,
		MaxDelay:     cfg.Session.Reconnect.MaxDelay,
		MaxDuration:  cfg.Session.Reconnect.MaxDuration,
		Jitter:       cfg.Session.Reconnect.Jitter,
	}
	if err := ocfg.Validate(); err != nil {
		return err
	}

	reg := orch.NewRegistry(ocfg, orch.Deps{
		Nets:        catalog,
		Policy:      app.TierPolicy{MinTier: minTier},
		Credentials: issuer,
		Store:       presence,
		Transports: orch.Backends{
			domain.BackendSimulated: func() core.Transport { return sim.New(sim.DefaultConfig()) },
			domain.BackendRealtime:  func() core.Transport { return rtc.New(rtc.Config{}) },
		},
	})

	r := router.SetupRouter(cfg, router.Deps{
		Registry:   reg,
		Nets:       catalog,
		Identities: members,
		Presence:   presence,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("backend", string(backend)).Msg("Voice server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return reg.CloseAll(shutdownCtx)
	})
	return g.Wait()
}
