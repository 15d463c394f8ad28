package main

import (
	"context"
	"expvar"
	"log"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/oakline/atrium/internal/collab"
	"github.com/oakline/atrium/internal/infrastructure/authz"
	"github.com/oakline/atrium/internal/infrastructure/configs"
	"github.com/oakline/atrium/internal/infrastructure/events"
	"github.com/oakline/atrium/internal/infrastructure/logging"
	"github.com/oakline/atrium/internal/infrastructure/messaging"
	"github.com/oakline/atrium/internal/infrastructure/metrics"
	"github.com/oakline/atrium/internal/infrastructure/ratelimiter"
	"github.com/oakline/atrium/internal/infrastructure/tracing"
	"github.com/oakline/atrium/internal/infrastructure/ws"
	"github.com/oakline/atrium/internal/persistence/db"
	"github.com/oakline/atrium/internal/persistence/repository"
	"github.com/oakline/atrium/internal/presentation/api"
	"github.com/oakline/atrium/internal/presentation/handler/health"
	"github.com/oakline/atrium/internal/presentation/handler/workspaces"
)

const (
	serviceName = "atrium-api"
)

func main() {
	tracerCfg := tracing.NewDefaultConfig(serviceName)

	sh, err := tracing.InitTracer(tracerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize the tracer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer sh(ctx)

	configPath := configs.DetermineConfigPath()
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:    cfg.Logging.Level,
		FilePath: cfg.Logging.FilePath,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	mongoCfg := &db.MongoConfig{
		URI:               cfg.Mongo.URI,
		Database:          cfg.Mongo.Database,
		ConnectionTimeout: db.DefaultConnectionTimeout,
	}
	mongoClient, err := db.NewMongoClient(ctx, mongoCfg)
	if err != nil {
		logger.Fatal(err)
	}
	defer db.DisconnectMongo(context.Background(), mongoClient)

	database := db.GetDatabase(mongoClient, mongoCfg)
	snapshotRepository := repository.NewSnapshotRepository(database)
	sessionRepository := repository.NewSessionRepository(database)
	workspaceRepository := repository.NewWorkspaceRepository(database)
	auditRepository := repository.NewSessionAuditRepository(database)

	rabbitmq, err := messaging.NewRabbitMQ(cfg.AMQP.URI)
	if err != nil {
		logger.Fatal(err)
	}
	defer rabbitmq.Close()

	logger.Info("RabbitMQ connection established")

	sessionPublisher := events.NewSessionPublisher(rabbitmq)

	sessionConsumer := events.NewSessionConsumer(rabbitmq, auditRepository, logger)
	go func() {
		if err := sessionConsumer.Listen(); err != nil {
			logger.Errorw("session consumer stopped", "error", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	registry := collab.NewRegistry(cfg.Collab.RoomGracePeriod)
	directory := collab.NewDirectory()
	store := collab.NewStore()
	sessions := collab.NewSessionTracker(sessionRepository, sessionPublisher, logger)
	relay := collab.NewRelay(registry, m, logger)
	authorizer := authz.NewRoleAuthorizer(workspaceRepository, logger)

	coordinator := collab.NewCoordinator(
		registry, directory, store, sessions, relay,
		snapshotRepository, sessionPublisher, authorizer, m, logger,
	)
	go coordinator.Run(ctx)

	clientOpts := ws.ClientOptions{
		SendBuffer:      cfg.Collab.SendBuffer,
		MaxMessageBytes: cfg.Collab.MaxMessageBytes,
	}

	workspacesHandler := workspaces.NewHandler(coordinator, store, sessionRepository, snapshotRepository, clientOpts, logger)
	healthHandler := health.NewHandler()

	rl := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})

	app := api.NewApplication(*cfg, workspacesHandler, healthHandler, logger, rl, promRegistry)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))
	expvar.Publish("open_workspaces", expvar.Func(func() any {
		return registry.RoomCount()
	}))

	mux := app.Mount()
	logger.Fatal(app.Run(mux))
}
