// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/picofermibagel/internal/auth"
	"github.com/jason-s-yu/picofermibagel/internal/broadcast"
	"github.com/jason-s-yu/picofermibagel/internal/cache"
	"github.com/jason-s-yu/picofermibagel/internal/command"
	"github.com/jason-s-yu/picofermibagel/internal/config"
	"github.com/jason-s-yu/picofermibagel/internal/database"
	"github.com/jason-s-yu/picofermibagel/internal/handlers"
	"github.com/jason-s-yu/picofermibagel/internal/interest"
	"github.com/jason-s-yu/picofermibagel/internal/launch"
	"github.com/jason-s-yu/picofermibagel/internal/lobby"
	"github.com/jason-s-yu/picofermibagel/internal/presence"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := broadcast.NewHub()
	var (
		lobbyStore    lobby.Store
		presenceStore presence.Store
		interestStore interest.Store
		broker        broadcast.Broker
		history       launch.History
		launches      handlers.LaunchReader
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := database.ConnectDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatalf("database: %v", err)
		}
		logger.Info("connected to database")

		rdb, err := cache.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		logger.WithField("addr", cfg.RedisAddr).Info("connected to redis")

		redisBroker := broadcast.NewRedisBroker(rdb, hub, logger)
		go func() {
			if err := redisBroker.Run(ctx, nil); err != nil {
				logger.WithError(err).Error("event relay stopped")
			}
		}()

		lobbyStore = database.NewLobbyStore(pool)
		presenceStore = cache.NewPresenceStore(rdb)
		interestStore = cache.NewInterestStore(rdb)
		broker = redisBroker
		history = cache.NewLaunchQueue(rdb, cfg.LaunchQueueName)
		launches = database.NewLaunchHistory(pool)
	default:
		logger.Warn("running with in-memory stores, state is lost on restart and not shared between nodes")
		lobbyStore = lobby.NewMemoryStore()
		presenceStore = presence.NewMemoryStore(nil)
		interestStore = interest.NewMemoryStore()
		broker = broadcast.NewLocalBroker(hub)
	}

	pub := broadcast.NewPublisher(broker)
	lobbies := lobby.NewService(lobbyStore, pub, logger, lobby.Options{
		CountdownSeconds: cfg.CountdownSeconds,
		MaxAttempts:      cfg.LobbyWriteAttempts,
	})
	tracker := presence.NewTracker(presenceStore, logger, presence.Options{
		StaleThreshold: cfg.StaleThreshold,
		TTL:            cfg.PresenceTTL,
	})
	agg := interest.NewAggregator(tracker, interestStore, pub, logger, nil)
	coordinator := launch.NewCoordinator(lobbies, pub, history, logger, launch.Options{
		MaxAttempts: cfg.LobbyWriteAttempts,
	})

	watcher := launch.NewWatcher(lobbies, coordinator, agg, logger, launch.WatcherOptions{
		PollInterval:      cfg.CountdownPollInterval,
		SweepInterval:     cfg.PresenceSweepInterval,
		ActiveGameTimeout: cfg.ActiveGameTimeout,
	})
	go watcher.Run(ctx)

	var keys *auth.Keys
	if cfg.LaunchKeyPublic != "" || cfg.LaunchKeyPrivate != "" {
		keys, err = auth.LoadKeys(cfg.LaunchKeyPrivate, cfg.LaunchKeyPublic, cfg.LaunchTokenTTL)
		if err != nil {
			logger.Fatalf("launcher keys: %v", err)
		}
	}

	srv := &handlers.Server{
		Dispatcher:           command.NewDispatcher(lobbies, tracker, agg, coordinator, logger),
		Lobbies:              lobbies,
		Interest:             agg,
		Hub:                  hub,
		Logger:               logger,
		Launches:             launches,
		LauncherKeys:         keys,
		RequireLauncherToken: cfg.LaunchTokenRequired,
		AllowedOrigins:       cfg.AllowedOrigins,
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	logger.WithFields(logrus.Fields{"addr": cfg.Addr(), "backend": cfg.StoreBackend}).Info("lobby coordinator listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}
