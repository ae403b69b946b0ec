package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	connectorapp "github.com/aurum/backend/internal/application/connector"
	"github.com/aurum/backend/internal/domain/connector"
	"github.com/aurum/backend/internal/infrastructure/cache"
	"github.com/aurum/backend/internal/infrastructure/config"
	"github.com/aurum/backend/internal/infrastructure/encryption"
	"github.com/aurum/backend/internal/infrastructure/logger"
	"github.com/aurum/backend/internal/infrastructure/persistence"
	"github.com/aurum/backend/internal/infrastructure/scheduler"
	"github.com/aurum/backend/internal/infrastructure/storage"
	"github.com/aurum/backend/internal/infrastructure/telemetry"
	"github.com/aurum/backend/internal/infrastructure/woocommerce"
	"github.com/aurum/backend/internal/interfaces/http/handler"
	"github.com/aurum/backend/internal/interfaces/http/middleware"
	"github.com/aurum/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// Base logger first so telemetry setup can report problems
	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:         cfg.Telemetry.Enabled,
		Endpoint:        cfg.Telemetry.CollectorEndpoint,
		Insecure:        cfg.Telemetry.Insecure,
		ServiceName:     cfg.Telemetry.ServiceName,
		SamplingRatio:   cfg.Telemetry.SamplingRatio,
		Metrics:         cfg.Telemetry.MetricsEnabled,
		MetricsInterval: cfg.Telemetry.MetricsInterval,
		Logs:            cfg.Telemetry.LogExportEnabled,
	}, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	meterProvider := providers.Meter

	// Tee zap into OTLP when log export is on
	log := baseLog
	if providers.Logger.IsEnabled() {
		log, err = telemetry.CreateBridgedLoggerFromConfig(&telemetry.BaseLoggerConfig{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}, providers.Logger, cfg.Telemetry.ServiceName)
		if err != nil {
			baseLog.Fatal("Failed to bridge logger to OpenTelemetry", zap.Error(err))
		}
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Aurum connector backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.WithoutVariables = !cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbMetricsCfg.SlowQueryThreshold = cfg.Telemetry.DBSlowQueryThresh
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, dbMetricsCfg, log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
	}

	// Repositories
	connectorRepo := persistence.NewGormConnectorRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	syncConfigRepo := persistence.NewGormSyncConfigRepository(db.DB)
	syncRunRepo := persistence.NewGormSyncRunRepository(db.DB)
	externalRecordRepo := persistence.NewGormExternalRecordRepository(db.DB)
	externalRefRepo := persistence.NewGormExternalReferenceRepository(db.DB)
	userLookupRepo := persistence.NewGormUserLookupRepository(db.DB)

	// Credential encryption
	encrypter, err := encryption.NewAESGCMEncrypter(cfg.Sync.EncryptionKey, "")
	if err != nil {
		log.Fatal("Failed to initialize credential encrypter", zap.Error(err))
	}

	// External platform clients
	wooCfg := woocommerce.DefaultConfig()
	wooCfg.Timeout = cfg.Sync.ClientTimeout
	wooCfg.MaxResponseBytes = cfg.Sync.MaxResponseBytes
	wooCfg.UserAgent = cfg.Sync.UserAgent
	wooCfg.RateLimit = cfg.Sync.RateLimit
	wooCfg.RateBurst = cfg.Sync.RateBurst
	wooCfg.Breaker.Enabled = cfg.Sync.BreakerEnabled
	wooCfg.Breaker.ConsecutiveFailures = cfg.Sync.BreakerFailures
	wooCfg.Breaker.OpenTimeout = cfg.Sync.BreakerTimeout
	factories := connector.NewClientFactoryRegistry(woocommerce.NewFactory(wooCfg, log.Named("woocommerce")))

	// Lookup resolver, cached when Redis is enabled
	var resolver connector.LookupResolver = connectorapp.NewLookupResolver(userLookupRepo, externalRefRepo)
	if cfg.Redis.Enabled {
		store, err := cache.NewLookupStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore()
		if err != nil {
			log.Fatal("Failed to initialize lookup cache", zap.Error(err))
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn("Error closing lookup cache", zap.Error(err))
			}
		}()
		resolver = cache.NewCachedLookupResolver(resolver, store, cfg.Redis.LookupCacheTTL, log)
	}

	// Raw page archive
	var archiver connector.PageArchiver = storage.NewNopPageArchiver()
	if cfg.Storage.Enabled {
		s3Archiver, err := storage.NewS3PageArchiver(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize page archive", zap.Error(err))
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := s3Archiver.EnsureBucket(bucketCtx); err != nil {
			log.Warn("Page archive bucket check failed", zap.String("bucket", s3Archiver.Bucket()), zap.Error(err))
		}
		cancel()
		archiver = s3Archiver
	}

	// Sync metrics
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:    meterProvider.Meter(telemetry.TracerName),
		Logger:   log,
		Provider: telemetry.NewGormConnectorMetricsProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	if meterProvider.IsEnabled() {
		syncMetrics.StartPeriodicCollection(ctx, cfg.Telemetry.MetricsInterval)
	}

	// Application services
	syncService := connectorapp.NewSyncService(
		connectorRepo,
		credentialRepo,
		syncConfigRepo,
		syncRunRepo,
		externalRecordRepo,
		factories,
		encrypter,
		resolver,
		log.Named("sync"),
	)
	syncService.SetArchiver(archiver)
	syncService.SetMetrics(syncMetrics)
	syncService.SetOptions(connectorapp.SyncOptions{ParallelEntities: cfg.Sync.ParallelEntities})

	connectorService := connectorapp.NewConnectorService(
		connectorRepo,
		credentialRepo,
		syncConfigRepo,
		syncRunRepo,
		factories,
		encrypter,
		syncService,
		log,
	)

	// Background scheduler
	var (
		syncScheduler *scheduler.SyncScheduler
		trigger       *scheduler.IntervalTrigger
	)
	if cfg.Scheduler.Enabled {
		syncScheduler, err = scheduler.NewSyncScheduler(scheduler.SyncSchedulerConfig{
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
			QueueSize:         cfg.Scheduler.QueueSize,
			JobTimeout:        cfg.Scheduler.JobTimeout,
			RetryAttempts:     cfg.Scheduler.RetryAttempts,
			RetryDelay:        cfg.Scheduler.RetryDelay,
		}, scheduler.NewConnectorSyncExecutor(syncService, log), log.Named("scheduler"))
		if err != nil {
			log.Fatal("Failed to create sync scheduler", zap.Error(err))
		}
		if err := syncScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		trigger = scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
			Interval: cfg.Scheduler.Interval,
		}, syncScheduler, connectorRepo, log.Named("scheduler"))
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
		log.Info("Sync scheduler started",
			zap.Duration("interval", cfg.Scheduler.Interval),
			zap.Int("workers", cfg.Scheduler.MaxConcurrentJobs),
		)
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order:
	// 1. Recovery catches panics from everything below
	// 2. RequestID before the logger so request logs carry it
	// 3. Tracing then span enrichment and error marking
	// 4. Metrics, security headers, CORS and body limit
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName, providers.Tracer.IsEnabled()))
	engine.Use(middleware.SpanEnricher())
	httpMetrics, err := middleware.HTTPMetrics(meterProvider)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}
	engine.Use(httpMetrics)
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var schedulerState handler.SchedulerState
	if syncScheduler != nil {
		schedulerState = syncScheduler
	}
	healthHandler := handler.NewHealthHandler(db, schedulerState, version)
	engine.GET("/health", healthHandler.Health)

	var routerOpts []router.Option
	if cfg.HTTP.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
		routerOpts = append(routerOpts, router.WithMiddleware(middleware.RateLimit(limiter)))
		log.Info("Rate limiting enabled",
			zap.Float64("requests_per_second", cfg.HTTP.RateLimit),
			zap.Int("burst", cfg.HTTP.RateBurst),
		)
	}

	var handlerOpts []handler.ConnectorHandlerOption
	if syncScheduler != nil {
		handlerOpts = append(handlerOpts, handler.WithSyncQueue(syncScheduler))
	}

	router.New(engine, routerOpts...).Mount(
		handler.NewConnectorHandler(connectorService, handlerOpts...),
		healthHandler,
	)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Stop producing jobs before draining the workers
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Warn("Error stopping sync trigger", zap.Error(err))
		}
	}
	if syncScheduler != nil {
		if err := syncScheduler.Stop(shutdownCtx); err != nil {
			log.Warn("Error stopping sync scheduler", zap.Error(err))
		}
	}

	syncMetrics.Stop()
	if dbMetrics != nil {
		dbMetrics.Stop()
	}

	if err := providers.Shutdown(shutdownCtx); err != nil {
		baseLog.Warn("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
