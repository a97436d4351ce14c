package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"go.mongodb.org/mongo-driver/mongo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/grigta/adpulse/pkg/cache"
	pkgconfig "github.com/grigta/adpulse/pkg/config"
	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/pkg/messaging"
	"github.com/grigta/adpulse/pkg/middleware"
	"github.com/grigta/adpulse/services/monitoring-service/internal/checks"
	"github.com/grigta/adpulse/services/monitoring-service/internal/config"
	"github.com/grigta/adpulse/services/monitoring-service/internal/handlers"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
	"github.com/grigta/adpulse/services/monitoring-service/internal/repository"
	"github.com/grigta/adpulse/services/monitoring-service/internal/service"
)

const serviceName = "monitoring-service"

func main() {
	configPath := flag.String("config", pkgconfig.GetEnv("CONFIG_PATH", "./configs/monitoring.yaml"), "path to the monitoring config file")
	runOnce := flag.Bool("run-once", false, "run one monitoring pass, print the result and exit")
	flag.Parse()

	infra, err := pkgconfig.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", logger.Field{Key: "error", Value: err.Error()})
	}

	log, err := logger.NewWithOptions(logger.Options{
		Level:      infra.Log.Level,
		Format:     infra.Log.Format,
		FilePath:   infra.Log.File,
		MaxSizeMB:  infra.Log.MaxSizeMB,
		MaxBackups: infra.Log.MaxBackups,
		MaxAgeDays: infra.Log.MaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		log.WithError(err).Warn("Log file unavailable, logging to stdout only")
	}
	logger.SetDefault(log)
	log = log.WithField("service", serviceName)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load monitoring config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoDB, err := database.NewMongoDB(infra.Database.URI, infra.Database.DBName, infra.Database.Timeout)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongoDB.Close()
	db := mongoDB.GetDatabase()

	if err := setupIndexes(ctx, mongoDB); err != nil {
		log.WithError(err).Error("Failed to setup indexes")
	}

	alertStore, closeStore, err := openAlertStore(ctx, cfg.Store.Alerts, infra, db, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open alert store")
	}
	defer closeStore()

	var (
		summaryCache service.SummaryCache
		runLock      service.RunLock
	)
	if infra.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(infra.Redis.Host, infra.Redis.Port, infra.Redis.Password, infra.Redis.DB)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisCache.Close()
		summaryCache = redisCache
		runLock = redisCache
	}

	var (
		publisher messaging.Publisher = messaging.NopPublisher{}
		rabbitmq  *messaging.RabbitMQ
	)
	if infra.RabbitMQ.Enabled {
		rabbitmq, err = messaging.NewRabbitMQ(infra.RabbitMQ.URL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to RabbitMQ")
		}
		defer rabbitmq.Close()
		if err := rabbitmq.SetupTopology(); err != nil {
			log.WithError(err).Fatal("Failed to setup RabbitMQ topology")
		}
		publisher = rabbitmq
	}

	var notifier service.Notifier
	if cfg.Telegram.Enabled {
		if infra.Telegram.BotToken == "" {
			log.Fatal("Telegram notifications enabled without a bot token")
		}
		tn, err := service.NewTelegramNotifier(infra.Telegram.BotToken, cfg.Telegram.DefaultChatID)
		if err != nil {
			log.WithError(err).Fatal("Failed to create Telegram notifier")
		}
		notifier = tn
	}

	metricsRepo := repository.NewMetricsRepository(db)
	signalRepo := repository.NewSignalRepository(db)
	clientRepo := repository.NewClientRepository(db)

	var refresher service.MetricRefresher
	if cfg.Sync.BaseURL != "" {
		source := service.NewHTTPMetricSource(service.HTTPMetricSourceConfig{
			BaseURL:    cfg.Sync.BaseURL,
			APIKey:     cfg.Sync.APIKey,
			Timeout:    cfg.Sync.Timeout,
			MaxRetries: cfg.Sync.MaxRetries,
		}, log)
		refresher = service.NewMetricSyncer(source, metricsRepo, cfg.Sync.LookbackDays, log)
	} else {
		log.Warn("Metric sync disabled, checks read stored rows only")
	}

	sources := checks.Sources{Metrics: metricsRepo}
	if cfg.Probe.Enabled {
		probe, err := service.NewBrowserProbe(service.BrowserProbeConfig{
			Headless:    cfg.Probe.Headless,
			MaxPages:    cfg.Probe.MaxPages,
			PageTimeout: cfg.Probe.PageTimeout,
			UserAgent:   cfg.Probe.UserAgent,
		}, log)
		if err != nil {
			log.WithError(err).Fatal("Failed to start browser probe")
		}
		defer probe.Close()
		sources.Site = probe
	}

	alertManager := service.NewAlertManager(alertStore, publisher, notifier, summaryCache, log, service.AlertManagerConfig{
		PreviewLimit: cfg.Alerts.PreviewLimit,
		SummaryTTL:   cfg.Alerts.SummaryTTL,
	})
	signalManager := service.NewSignalManager(signalRepo, log)
	fatigue := service.NewFatigueDetector(metricsRepo, signalRepo, cfg.Fatigue, log)

	orchestrator := service.NewOrchestrator(service.OrchestratorDeps{
		Clients:   clientRepo,
		Registry:  checks.DefaultRegistry(),
		Sources:   sources,
		Refresher: refresher,
		Fatigue:   fatigue,
		Alerts:    alertManager,
		Lock:      runLock,
		Publisher: publisher,
		Logger:    log,
	}, service.OrchestratorConfig{
		Concurrency:   cfg.Orchestrator.Concurrency,
		ClientTimeout: cfg.Orchestrator.ClientTimeout,
		LockTTL:       cfg.Orchestrator.LockTTL,
	})

	if *runOnce {
		result, err := orchestrator.RunMonitoring(ctx, models.RunRequest{TriggeredBy: "run-once"})
		if err != nil {
			log.WithError(err).Fatal("Monitoring run failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.WithError(err).Fatal("Failed to print run result")
		}
		return
	}

	if rabbitmq != nil {
		consumer := handlers.NewRunConsumer(rabbitmq, orchestrator, log)
		if err := consumer.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start run consumer")
		}
	}

	if cfg.Schedule.Enabled {
		go service.NewScheduler(orchestrator, cfg.Schedule.Interval, log).Run(ctx)
	}

	grpcServer, healthServer := startGRPCServer(infra.App.GRPCPort, log)

	handler := handlers.NewMonitoringHandler(orchestrator, alertManager, signalManager, orchestrator.Registry(), service.RolePolicy{}, log)
	httpServer := newHTTPServer(ctx, infra, handler, log)
	go func() {
		log.WithField("port", infra.App.Port).Info("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to serve HTTP")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down monitoring service...")
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server forced to shutdown")
	}
	grpcServer.GracefulStop()
	log.Info("Monitoring service exited")
}

// openAlertStore returns the configured AlertStore and a closer for it.
func openAlertStore(ctx context.Context, kind string, infra *pkgconfig.Config, db *mongo.Database, log logger.Logger) (service.AlertStore, func(), error) {
	noop := func() {}
	switch kind {
	case config.AlertStorePostgres:
		pg, err := database.NewPostgres(ctx, database.PostgresConfig{
			Host:     infra.Postgres.Host,
			Port:     infra.Postgres.Port,
			User:     infra.Postgres.User,
			Password: infra.Postgres.Password,
			DBName:   infra.Postgres.DBName,
			SSLMode:  infra.Postgres.SSLMode,
		})
		if err != nil {
			return nil, noop, err
		}
		store := repository.NewPostgresAlertStore(pg)
		if err := store.Migrate(ctx); err != nil {
			pg.Close()
			return nil, noop, fmt.Errorf("failed to migrate alert table: %w", err)
		}
		return store, closeSQL(pg, log), nil
	case config.AlertStoreMemory:
		log.Warn("Using in-memory alert store, alerts are lost on restart")
		return repository.NewMemoryAlertStore(), noop, nil
	default:
		return repository.NewAlertRepository(db), noop, nil
	}
}

func closeSQL(db *sql.DB, log logger.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("Failed to close PostgreSQL")
		}
	}
}

func setupIndexes(ctx context.Context, db *database.MongoDB) error {
	for collection, indexes := range map[string][]mongo.IndexModel{
		repository.AlertsCollection:  repository.AlertIndexes(),
		repository.SignalsCollection: repository.SignalIndexes(),
		repository.MetricsCollection: repository.MetricsIndexes(),
		repository.ClientsCollection: repository.ClientIndexes(),
	} {
		if err := db.CreateIndexes(ctx, collection, indexes); err != nil {
			return fmt.Errorf("%s: %w", collection, err)
		}
	}
	return nil
}

func startGRPCServer(port int, log logger.Logger) (*grpc.Server, *health.Server) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.WithField("port", port).Info("Starting gRPC health server")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Fatal("Failed to serve gRPC")
		}
	}()
	return grpcServer, healthServer
}

func newHTTPServer(ctx context.Context, infra *pkgconfig.Config, handler *handlers.MonitoringHandler, log logger.Logger) *http.Server {
	if !infra.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(infra.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
			"version": version.Version,
		})
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(versioncollector.NewCollector("adpulse_monitoring"))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, registry},
		promhttp.HandlerOpts{},
	)))

	api := router.Group("/api/v1")
	api.Use(middleware.NewAuthMiddleware(infra.JWT.Secret).Authenticate())
	if infra.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(infra.RateLimit.Requests, infra.RateLimit.Window).
			WithCost(http.MethodPost, "/api/v1/monitoring/runs", 10)
		go limiter.Run(ctx)
		api.Use(limiter.Middleware())
	}
	handler.RegisterRoutes(api)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", infra.App.Port),
		Handler: router,
	}
}
