package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/tipjar/broker/internal/config"
	"github.com/tipjar/broker/internal/db"
	"github.com/tipjar/broker/internal/events"
	apphttp "github.com/tipjar/broker/internal/http"
	"github.com/tipjar/broker/internal/http/handlers"
	"github.com/tipjar/broker/internal/repositories"
	"github.com/tipjar/broker/internal/services"
	"github.com/tipjar/broker/migrations"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var store services.StreamerStore
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: int32(cfg.PostgresMaxConns)}, log)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		var migrationsFS fs.FS = migrations.FS
		if cfg.MigrationsDir != "" {
			migrationsFS = os.DirFS(cfg.MigrationsDir)
		}
		if _, err := db.RunMigrations(ctx, pool, migrationsFS, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		store = repositories.NewStreamerRepo(pool)
	default:
		store = repositories.NewMemoryStreamerRepo()
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	publisher, subscriber := eventStreams(rdb, log)
	if rdb != nil {
		defer rdb.Close()
	}

	// Services
	bindings := services.NewBindings()
	directory := services.NewDirectory(store, bindings, log)
	broker := services.NewBroker(directory, bindings, log)
	router := services.NewRouter(bindings, log)
	signer := services.NewCorrelationSigner(cfg.CorrelationSecret, cfg.HandshakeTTL)
	coordinator := services.NewCoordinator(directory, broker, router, signer, publisher, services.HandshakeOptions{
		TTL:             cfg.HandshakeTTL,
		MaxPending:      cfg.HandshakeMaxPending,
		NotifyOnFailure: cfg.NotifyOnFailure(),
	}, log)
	dispatcher := services.NewDispatcher(directory, broker, coordinator, router, cfg.DispatchQueueSize, log)

	// No connection survives a restart.
	if err := directory.ResetOnline(ctx); err != nil {
		log.Fatal("failed to reset online flags", zap.Error(err))
	}
	if cfg.SeedFile != "" {
		added, err := directory.SeedFromFile(ctx, cfg.SeedFile)
		if err != nil {
			log.Fatal("failed to seed streamers", zap.String("file", cfg.SeedFile), zap.Error(err))
		}
		log.Info("streamers seeded", zap.Int("added", added))
	}

	if err := subscriber.Subscribe(ctx, events.StreamAnimation, func(e events.Event) {
		n := router.BroadcastStreamers(services.EventAnimationBroadcast, e.Payload)
		log.Debug("animation broadcast", zap.String("type", e.Type), zap.Int("delivered", n))
	}); err != nil {
		log.Fatal("failed to subscribe", zap.String("stream", events.StreamAnimation), zap.Error(err))
	}

	go dispatcher.Run(ctx)

	// Handlers
	healthHandler := handlers.NewHealthHandler(router, coordinator)
	streamerHandler := handlers.NewStreamerHandler(directory, log)
	wsHandler := handlers.NewWSHandler(dispatcher, router, cfg.WSSendBuffer, log)

	app := apphttp.NewApp()
	apphttp.SetupRouter(app, cfg, log, rdb, healthHandler, streamerHandler, wsHandler)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		_ = app.Shutdown()
		cancel()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting broker",
		zap.String("addr", addr),
		zap.String("store", cfg.StoreBackend),
		zap.String("failure_policy", cfg.HandshakeFailurePolicy),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func eventStreams(rdb *redis.Client, log *zap.Logger) (events.Publisher, events.Subscriber) {
	if rdb == nil {
		return events.NopPublisher{}, events.NopSubscriber{}
	}
	return events.NewRedisPublisher(rdb, log), events.NewRedisSubscriber(rdb, log)
}
