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

	"go.uber.org/zap"

	"github.com/kailas-cloud/coursedex/internal/config"
	logpkg "github.com/kailas-cloud/coursedex/internal/logger"
	"github.com/kailas-cloud/coursedex/internal/metrics"
	"github.com/kailas-cloud/coursedex/internal/repository/catalog"
	categoryrepo "github.com/kailas-cloud/coursedex/internal/repository/category"
	"github.com/kailas-cloud/coursedex/internal/repository/deadletter"
	chiTransport "github.com/kailas-cloud/coursedex/internal/transport/chi"
	counteruc "github.com/kailas-cloud/coursedex/internal/usecase/counter"
	healthuc "github.com/kailas-cloud/coursedex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/coursedex/internal/usecase/search"
	"github.com/kailas-cloud/coursedex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting coursedex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.String("catalog_refresh", cfg.Catalog.Refresh),
	)

	ctx := context.Background()

	store, err := buildStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	if m, ok := store.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			logger.Fatal("Database migration failed", zap.Error(err))
		}
	}
	logger.Info("Connected to database")

	// Register domain metrics explicitly (no init())
	metrics.RegisterDomainMetrics()

	// Catalog: blob source -> loader -> cache
	src, err := buildSource(ctx, cfg.Catalog)
	if err != nil {
		logger.Fatal("Failed to create catalog source", zap.Error(err))
	}
	refresh, err := catalog.ParseRefresh(cfg.Catalog.Refresh)
	if err != nil {
		logger.Fatal("Invalid catalog refresh mode", zap.Error(err))
	}
	cache := catalog.NewCache(
		catalog.NewLoader(src, cfg.Catalog.Key, logger),
		catalog.CacheConfig{
			Refresh:      refresh,
			MaxStaleness: time.Duration(cfg.Catalog.MaxStalenessSec) * time.Second,
			Reloads:      metrics.CatalogReloadsTotal,
			Courses:      metrics.CatalogCourses,
		},
		logger,
	)
	if err := cache.Warm(ctx); err != nil {
		// Search answers from an empty catalog until a reload succeeds.
		logger.Error("Initial catalog load failed", zap.Error(err))
	}

	// Repositories
	categories := categoryrepo.New(store, cfg.Storage.KeyPrefix)
	if err := categories.EnsureIndexes(ctx); err != nil {
		logger.Warn("Category indexes unavailable, listings fall back to scans", zap.Error(err))
	}

	// Use case services
	searchSvc := searchuc.New(cache, categories, searchuc.Config{
		DefaultLimit:      cfg.Search.DefaultLimit,
		MaxLimit:          cfg.Search.MaxLimit,
		ScoreThreshold:    cfg.Search.ScoreThreshold,
		CategoryScanLimit: cfg.Search.CategoryScanLimit,
	}, logger)

	counterSvc := counteruc.New(categories, counteruc.Config{
		MaxAttempts: cfg.Counters.MaxAttempts,
		Backoff:     time.Duration(cfg.Counters.BackoffMS) * time.Millisecond,
		DedupTTL:    time.Duration(cfg.Counters.DedupTTLSec) * time.Second,
	}, logger)

	deps := chiTransport.Deps{
		Courses:    searchSvc,
		Categories: searchSvc,
		Counters:   counterSvc,
		Health:     healthuc.New(store, cache),
	}
	if !cfg.Counters.DisableDeadLetter {
		dl := deadletter.New(store, cfg.Storage.KeyPrefix,
			time.Duration(cfg.Counters.DeadLetterTTLSec)*time.Second)
		counterSvc.WithFailureSink(dl)
		deps.Failures = dl
	}

	opts := chiTransport.RouterOptions{APIKeys: cfg.Auth.APIKeys}
	if cfg.Search.RateLimitRPS > 0 {
		opts.SearchLimiter = chiTransport.NewIPRateLimiter(cfg.Search.RateLimitRPS, cfg.Search.RateLimitBurst)
	}
	handler := chiTransport.NewRouter(chiTransport.NewServer(deps, logger), opts)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
