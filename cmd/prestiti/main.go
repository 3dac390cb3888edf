package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"prestiti/internal/amqp"
	"prestiti/internal/cache"
	"prestiti/internal/config"
	apphttp "prestiti/internal/http"
	applog "prestiti/internal/log"
	"prestiti/internal/services"
	"prestiti/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

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

	// Schedule cache: in-process LRU by default, Redis when the API server
	// and worker need to share invalidations.
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
		logger.Info("Initialized Redis schedule cache", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	default:
		scheduleCache = cache.NewLRUCache[string](1024, cfg.CacheTTL)
		logger.Info("Initialized LRU schedule cache", "ttl", cfg.CacheTTL)
	}

	// AMQP is optional: without a broker the API still works, schedules are
	// just recomputed in-process instead of by the worker.
	var publisher services.Publisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, recompute messages disabled", "error", err)
	} else {
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	policy, err := services.PolicyFromConfig(cfg)
	if err != nil {
		logger.Error("Invalid billing policy", "error", err)
		os.Exit(1)
	}

	svc := services.NewPortfolioService(repo, scheduleCache, publisher, policy)

	srv := apphttp.NewServer(":"+cfg.Port, svc)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting prestiti server", "port", cfg.Port, "cache_backend", cfg.CacheBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
