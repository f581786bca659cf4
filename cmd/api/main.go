package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"marketplace-risk-engine/internal/application/alerting"
	"marketplace-risk-engine/internal/application/assessment"
	"marketplace-risk-engine/internal/infrastructure/analyzer"
	"marketplace-risk-engine/internal/infrastructure/database/postgres"
	"marketplace-risk-engine/internal/infrastructure/events"
	"marketplace-risk-engine/internal/infrastructure/http/router"
	"marketplace-risk-engine/internal/infrastructure/statestore"
	"marketplace-risk-engine/internal/interfaces/http/handler"
	"marketplace-risk-engine/internal/interfaces/realtime"
	"marketplace-risk-engine/internal/pkg/config"
	"marketplace-risk-engine/internal/pkg/logging"
	"marketplace-risk-engine/internal/pkg/metrics"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting marketplace risk engine",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))

	// Database connection. The durable store is required: alerts must
	// outlive the process.
	dbClient, err := postgres.NewClient(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Name,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer dbClient.Close()
	if err := dbClient.Migrate(); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	userRepo := postgres.NewUserRepository(dbClient)
	productRepo := postgres.NewProductRepository(dbClient)
	txRepo := postgres.NewTransactionRepository(dbClient)
	chatRepo := postgres.NewChatRepository(dbClient)
	alertRepo := postgres.NewAlertRepository(dbClient)

	// Shared state tier with in-process fallback. A Redis outage degrades
	// velocity tracking and broadcast to single-process scope but never
	// stops assessment.
	redisStore := statestore.NewRedisStore(statestore.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}, logger)
	memoryStore := statestore.NewMemoryStore()
	store := statestore.NewTiered(redisStore, memoryStore)
	defer store.Close()

	m := metrics.Default()

	// Analyzers
	velocity := analyzer.NewVelocityTracker(redisStore, memoryStore, m, logger)
	device := analyzer.NewDeviceAnalyzer(cfg.Risk.FingerprintSalt)
	behavior := analyzer.NewBehaviorAnalyzer(txRepo, logger)
	geo := analyzer.NewGeoAnalyzer(store)

	engine := assessment.NewEngine(
		userRepo, productRepo, txRepo, chatRepo,
		velocity, device, behavior, geo,
		store, m, logger,
		assessment.Config{
			HighValueThreshold: cfg.Risk.GetHighValueThreshold(),
			RiskyKeywords:      cfg.Risk.RiskyKeywords,
			AnalysisTimeout:    cfg.Risk.AnalysisTimeout,
		},
	)
	locks := assessment.NewLockManager(store)

	// Audit pipeline
	var audit alerting.AuditRecorder
	if cfg.Kafka.Enabled {
		producer, err := events.NewAuditProducer(events.Config{
			Brokers:    cfg.Kafka.Brokers,
			AuditTopic: cfg.Kafka.AuditTopic,
		}, logger)
		if err != nil {
			logger.Warn("kafka unavailable, audit events disabled", zap.Error(err))
		} else {
			defer producer.Close()
			audit = producer
		}
	}

	sms := alerting.NewLogSMSNotifier(logger)
	dispatcher := alerting.NewDispatcher(alertRepo, store, sms, audit, m, logger)

	// Reviewer live stream
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := realtime.NewHub(logger)
	go hub.Run(hubCtx)
	store.Subscribe(alerting.Channel, hub.HandleChannelMessage)
	dispatcher.RegisterCallback(hub.Deliver)

	// HTTP surface
	riskHandler := handler.NewRiskHandler(engine, dispatcher, locks, device)
	alertHandler := handler.NewAlertHandler(dispatcher)
	healthHandler := handler.NewHealthHandler(dbClient, redisStore, version)

	r := router.NewRouter(riskHandler, alertHandler, healthHandler, hub)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	stopHub()

	logger.Info("server stopped")
}
