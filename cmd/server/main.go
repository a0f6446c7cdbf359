package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/config"
	"github.com/mamadbah2/provisioning/internal/repository/mongodb"
	"github.com/mamadbah2/provisioning/internal/repository/postgres"
	"github.com/mamadbah2/provisioning/internal/scheduler"
	"github.com/mamadbah2/provisioning/internal/server/handlers"
	"github.com/mamadbah2/provisioning/internal/server/router"
	aggregationsvc "github.com/mamadbah2/provisioning/internal/service/aggregation"
	catalogsvc "github.com/mamadbah2/provisioning/internal/service/catalog"
	"github.com/mamadbah2/provisioning/internal/service/filters"
	reportingsvc "github.com/mamadbah2/provisioning/internal/service/reporting"
	substitutionsvc "github.com/mamadbah2/provisioning/internal/service/substitution"
	catalogclient "github.com/mamadbah2/provisioning/pkg/clients/catalog"
	"github.com/mamadbah2/provisioning/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	pool, err := postgres.NewPool(startupCtx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
	if err != nil {
		baseLogger.Fatal("failed to init postgres pool", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.Migrate(startupCtx, pool); err != nil {
		baseLogger.Fatal("failed to apply migrations", zap.Error(err))
	}

	mirror, err := mongodb.NewCatalogMirror(startupCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init catalog mirror", zap.Error(err))
	}
	defer func() {
		if err := mirror.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()

	var cache catalogsvc.Cache
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		redisCache, err := catalogsvc.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.TTL, logger.Named(baseLogger, "cache.redis"))
		if err != nil {
			baseLogger.Fatal("failed to init redis cache", zap.Error(err))
		}
		defer func() { _ = redisCache.Close() }()
		cache = redisCache
	default:
		cache = catalogsvc.NewMemoryCache(cfg.Cache.TTL)
	}
	baseLogger.Info("catalog cache ready",
		zap.String("backend", cfg.Cache.Backend),
		zap.Duration("ttl", cfg.Cache.TTL))

	needRepo := postgres.NewNeedRepo(pool)
	proposalRepo := postgres.NewProposalRepo(pool)
	logisticsRepo := postgres.NewLogisticsRepo(pool)

	upstream := catalogclient.NewClient(cfg.Catalog)
	catalogService := catalogsvc.NewService(upstream, mirror, cache, logger.Named(baseLogger, "svc.catalog"))
	resolver := filters.NewResolver(logisticsRepo, logger.Named(baseLogger, "svc.filters"))
	aggregator := aggregationsvc.NewService(
		needRepo,
		proposalRepo,
		logisticsRepo,
		resolver,
		catalogService,
		cfg.Aggregation.EnrichmentConcurrency,
		logger.Named(baseLogger, "svc.aggregation"),
	)
	substitutionService := substitutionsvc.NewService(needRepo, proposalRepo, catalogService, logger.Named(baseLogger, "svc.substitution"))
	reportingService := reportingsvc.NewService(aggregator, logger.Named(baseLogger, "svc.reporting"))

	substitutionHandler := handlers.NewSubstitutionHandler(
		aggregator,
		substitutionService,
		catalogService,
		reportingService,
		handlers.NewValidator(),
		logger.Named(baseLogger, "handlers.substitutions"),
	)
	catalogHandler := handlers.NewCatalogHandler(catalogService, logger.Named(baseLogger, "handlers.catalog"))
	engine := router.New(substitutionHandler, catalogHandler, logger.Named(baseLogger, "router"))

	sched := scheduler.NewScheduler(cfg.Cache, catalogService, logger.Named(baseLogger, "scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
