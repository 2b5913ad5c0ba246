/**
 * @description
 * This is the main entry point for the Heritage scheduler. It is a long-running process
 * without customer routes: it refreshes the shared crypto price cache and reports stale
 * pending transfers on cron schedules, and exposes its metrics for scraping.
 */
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agent-support/projectheritag/internal/app"
	"github.com/agent-support/projectheritag/internal/config"
	"github.com/agent-support/projectheritag/internal/metrics"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/agent-support/projectheritag/pkg/priceclient"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	// Price refreshes need the cache; the stale transfer report runs either way.
	var refresher app.PriceRefresher
	if redisClient := connectRedis(logger, cfg.RedisURL); redisClient != nil {
		defer redisClient.Close()
		prices := app.NewPriceService(
			redisClient,
			cfg.RedisKeyPrefix,
			time.Duration(cfg.PriceCacheTTLSeconds)*time.Second,
			priceclient.NewClient(cfg.PriceFeedBaseURL, cfg.PriceFeedAPIKey),
		)
		prices.SetMetrics(appMetrics)
		refresher = prices
	}

	repository := store.NewPostgresRepository(dbpool)
	jobs := app.NewJobs(repository, refresher, appMetrics, logger, cfg)
	scheduler := app.NewScheduler(jobs, logger, cfg)

	registered := scheduler.Start()
	logger.Info("scheduler started", "jobs", registered)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.Handler(registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}
	logger.Info("scheduler stopped gracefully")
}

func connectRedis(logger *slog.Logger, rawURL string) *redis.Client {
	if rawURL == "" {
		logger.Warn("redis url missing; price refresh disabled")
		return nil
	}
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		logger.Warn("redis url parse failed; price refresh disabled", "error", err)
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; price refresh disabled", "error", err)
		client.Close()
		return nil
	}
	return client
}
