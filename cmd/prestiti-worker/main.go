package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prestiti/internal/amqp"
	"prestiti/internal/cache"
	"prestiti/internal/config"
	"prestiti/internal/export"
	gsheet "prestiti/internal/export/google"
	applog "prestiti/internal/log"
	"prestiti/internal/services"
	"prestiti/internal/storage"
	"prestiti/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.Config{Component: applog.ComponentWorker})
	applog.SetDefault(logger)

	logger.Info("Starting prestiti-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// The worker needs the same cache the API serves from, otherwise its
	// invalidations are no-ops. Redis is the shared backend; with the LRU
	// backend each process keeps its own cache and the worker just rebuilds
	// snapshots and exports.
	var scheduleCache cache.Cache[string]
	switch cfg.CacheBackend {
	case "redis":
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			pingCancel()
			logger.Error("Failed to connect to Redis", "error", err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		pingCancel()
		scheduleCache = redisCache
		logger.Info("Using shared Redis schedule cache", "addr", cfg.RedisAddr)
	default:
		scheduleCache = cache.NewLRUCache[string](1024, cfg.CacheTTL)
		logger.Info("Using in-process LRU schedule cache")
	}

	policy, err := services.PolicyFromConfig(cfg)
	if err != nil {
		logger.Error("Invalid billing policy", "error", err)
		os.Exit(1)
	}

	// The worker never publishes, it only consumes.
	svc := services.NewPortfolioService(repo, scheduleCache, nil, policy)

	// Initialize Google Sheets exporter (optional)
	var exporter export.ScheduleExporter
	if cfg.ExportSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.ExportSpreadsheetID)
	} else {
		logger.Info("Schedule export disabled - no EXPORT_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	recomputeWorker := worker.NewRecomputeWorker(svc, exporter, cfg.SnapshotInterval)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		handler := func(msg *amqp.RecomputeMessage) error {
			return recomputeWorker.HandleRecomputeMessage(ctx, msg)
		}
		if err := amqpClient.ConsumeRecompute(ctx, handler); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	go recomputeWorker.RunSnapshotLoop(ctx)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give in-flight handlers a moment to finish
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
