package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	router "github.com/dkeye/Lounge/internal/adapters/http"
	wsignal "github.com/dkeye/Lounge/internal/adapters/signal"
	"github.com/dkeye/Lounge/internal/agent"
	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/app/orch"
	"github.com/dkeye/Lounge/internal/config"
	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/store/gormstore"
	"github.com/dkeye/Lounge/internal/store/memory"
	"github.com/dkeye/Lounge/internal/store/migrations"
	"github.com/dkeye/Lounge/internal/store/redisstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

type stores struct {
	sessions core.SessionStore
	rooms    interface {
		core.RoomStore
		core.MessageStore
	}
	closers []func() error
}

func (s *stores) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("close store")
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{}
	var db *gorm.DB

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := migrations.Up(cfg.Storage.DatabaseURL); err != nil {
			return nil, err
		}
		var err error
		if db, err = gormstore.Open(cfg.Storage.DatabaseURL); err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sqlDB.Close)
		s.rooms = gormstore.NewRoomRepo(db)
	default:
		s.rooms = memory.NewRooms()
	}

	switch cfg.PresenceDriver() {
	case config.DriverRedis:
		rdb, err := redisstore.Dial(ctx, cfg.Presence.RedisAddr)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, rdb.Close)
		s.sessions = redisstore.New(rdb, cfg.Presence.KeyPrefix)
	case config.DriverPostgres:
		if db == nil {
			s.close()
			return nil, errors.New("presence.driver postgres needs storage.driver postgres")
		}
		s.sessions = gormstore.NewSessionRepo(db)
	default:
		s.sessions = memory.NewSessions()
	}

	log.Info().Str("module", "main").
		Str("storage", cfg.Storage.Driver).
		Str("presence", cfg.PresenceDriver()).
		Msg("stores ready")
	return s, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	hub := wsignal.NewHub(app.SimplePolicy{})
	tracker := app.NewTracker(st.sessions, nil)
	if err := tracker.Rebuild(ctx); err != nil {
		return err
	}
	rooms := app.NewRegistry(st.rooms, hub, nil)

	var bot *agent.MusicBot
	var participants []core.Participant
	if cfg.Agent.Enabled {
		if bot, err = agent.New(agent.DefaultWebRTCConfig(cfg.Agent.STUNURLs...)); err != nil {
			return err
		}
		participants = append(participants, bot)
	}

	o := &orch.Orchestrator{
		Presence: tracker,
		Rooms:    rooms,
		Chat:     app.NewChat(st.rooms, tracker, hub, nil),
		Relay:    app.NewRelay(tracker, hub, participants...),
		Notifier: hub,
	}
	if bot != nil {
		o.Agent = bot
	}
	o.WatchRooms()

	lifecycle := app.NewLifecycle(app.LifecycleConfig{
		DeleteAfter:        cfg.Lifecycle.DeleteAfter,
		GracePeriod:        cfg.Lifecycle.GracePeriod,
		StaleSessionMaxAge: cfg.Lifecycle.StaleSessionMaxAge,
		SweepInterval:      cfg.Lifecycle.SweepInterval,
	}, tracker, rooms, nil)

	ws := wsignal.NewController(o, hub, wsignal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		RateLimit:    cfg.Gateway.RateLimit,
		RateInterval: cfg.Gateway.RateInterval,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.SetupRouter(ctx, cfg, o, ws),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Lounge server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return lifecycle.Run(gctx) })
	g.Go(func() error { return tracker.RunNotifier(gctx, hub) })
	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server exited gracefully")
	return err
}
