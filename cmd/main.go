package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshup/internal/app/registry"
	"meshup/internal/app/router"
	"meshup/internal/app/server"
	"meshup/internal/app/server/handlers"
	"meshup/internal/app/worker"
	"meshup/internal/config"
	"meshup/internal/core/contracts"
	"meshup/internal/core/domain"
	"meshup/internal/core/services"
	"meshup/internal/platform/logger"
	"meshup/internal/platform/telemetry"
	"meshup/internal/plugins/memory"
	natsPlugin "meshup/internal/plugins/nats"
	"meshup/internal/plugins/postgres"
	redisPlugin "meshup/internal/plugins/redis"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

const subjectPrefix = "meshup"

// datastore is everything the core needs from persistence.
type datastore interface {
	domain.UserRepository
	domain.ServerRepository
	domain.ChannelRepository
	domain.MessageRepository
	domain.DirectMessageRepository
	domain.EventRepository
	domain.CallRepository
	contracts.Transactor
	contracts.MembershipService
}

func main() {
	if err := run(); err != nil {
		slog.Error("meshup - exited with error", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewLogger(cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	} else {
		defer func() {
			log.Info("flushing telemetry...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(shutdownCtx); err != nil {
				log.Error("telemetry shutdown failed", "err", err)
			}
		}()
	}

	// Infra
	store, closeStore, err := openDatastore(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var rdb *redis.Client
	if cfg.Realtime.PresenceBackend == "redis" || cfg.Realtime.RegistryBackend == "redis" {
		if rdb, err = redisPlugin.NewClient(ctx, cfg.Service.Name, cfg.Redis); err != nil {
			log.Error("redis connection failed", "url", cfg.Redis.URL)
			return err
		}
		defer rdb.Close()
		log.Info("redis connected")
	}

	var (
		presence contracts.PresenceStore
		cooldown contracts.Cooldown
	)
	if cfg.Realtime.PresenceBackend == "redis" {
		presence = redisPlugin.NewRedisPresenceStore(rdb)
		cooldown = redisPlugin.NewCooldown(rdb)
	} else {
		presence = memory.NewPresenceStore()
		cooldown = memory.NewCooldown()
	}

	broker, err := openBroker(log, cfg, rdb)
	if err != nil {
		return err
	}
	if broker != nil {
		defer broker.Close()
	}

	// Core
	hub := registry.NewRegistry(log, broker)
	defer hub.Close()
	bridge := services.NewBridge(log, hub)

	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	auth := services.NewAuthenticator(log, tokens, store)
	authorizer := services.NewAccessAuthorizer(log, store, store, store, store, store, store)
	callSvc := services.NewCallService(log, store, store, store, store, store, bridge)
	msgSvc := services.NewMessageService(log, store, store, store, cooldown, bridge, cfg.Realtime.MaxMessageLength)
	presenceSvc := services.NewPresenceService(log, store, presence, bridge, cfg.Realtime.PresenceTTL)
	eventSvc := services.NewEventService(log, store, store, bridge)

	// Transport
	realtime := handlers.NewRealtimeHandler(log, cfg.Realtime, auth, authorizer, hub, bridge,
		router.NewChannelRouter(log, bridge, msgSvc, presenceSvc),
		router.NewDirectMessageRouter(log, bridge, msgSvc),
		router.NewPresenceRouter(log, bridge, presenceSvc),
		router.NewCallRouter(log, bridge),
		router.NewEventRouter(log, bridge, eventSvc),
	)
	srv := server.NewServer(log, cfg, auth, realtime,
		handlers.NewCallHandler(callSvc, authorizer),
		handlers.NewMessageHandler(msgSvc, authorizer),
		handlers.NewEventHandler(eventSvc, authorizer),
	)
	sweeper := worker.NewRingingSweeper(log, callSvc, cfg.Calls.RingTimeout, cfg.Calls.SweepInterval)

	sup := suture.New("meshup", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: log}).MustHook(),
	})
	sup.Add(srv)
	sup.Add(sweeper)

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func openDatastore(ctx context.Context, log *slog.Logger, cfg *config.Config) (datastore, func(), error) {
	if cfg.Realtime.DatastoreDriver == "memory" {
		log.Warn("datastore - using in-memory store, data is lost on exit")
		return memory.NewStore(), func() {}, nil
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "err", err)
		return nil, nil, err
	}
	log.Info("postgres connected")
	return postgres.NewStore(db), func() { _ = db.Close() }, nil
}

func openBroker(log *slog.Logger, cfg *config.Config, rdb *redis.Client) (contracts.Broker, error) {
	switch cfg.Realtime.RegistryBackend {
	case "redis":
		log.Info("registry - relaying over redis pub/sub")
		return redisPlugin.NewBroker(rdb, subjectPrefix), nil
	case "nats":
		nc, err := natsPlugin.Connect(cfg.NATS)
		if err != nil {
			log.Error("nats connection failed", "url", cfg.NATS.URL)
			return nil, err
		}
		log.Info("registry - relaying over nats")
		return natsPlugin.NewBroker(nc, subjectPrefix), nil
	case "memory":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown registry backend %q", cfg.Realtime.RegistryBackend)
}
