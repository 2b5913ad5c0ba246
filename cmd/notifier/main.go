/**
 * @description
 * This is the main entry point for the Heritage notifier. It consumes debit and credit
 * alerts from RabbitMQ and forwards them to the email delivery endpoint. Delivery
 * failures that may succeed later are re-queued; permanent rejections are dropped.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go (via pkg/rabbitmq): alert queue consumer.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - pkg/alertclient: HTTP client for the email delivery endpoint.
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
	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/metrics"
	"github.com/agent-support/projectheritag/pkg/alertclient"
	"github.com/agent-support/projectheritag/pkg/rabbitmq"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

const alertPrefetch = 10

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
	if cfg.AlertBaseURL == "" {
		logger.Error("alert delivery endpoint must be configured", "env", "ALERT_BASE_URL")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	sender := alertclient.NewClient(cfg.AlertBaseURL, cfg.AlertAPIKey)
	handler := app.NewAlertEventHandler(sender, appMetrics, logger)

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, alertPrefetch)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.ConsumeWithBindings(domain.EventsExchange, cfg.AlertQueue, handler.Bindings()); err != nil {
		logger.Error("failed to start alert consumer", "queue", cfg.AlertQueue, "error", err)
		os.Exit(1)
	}
	logger.Info("alert consumer started", "exchange", domain.EventsExchange, "queue", cfg.AlertQueue)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", metrics.Handler(registry))

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case <-consumer.Done():
		// The broker closed the delivery channel; exit so the supervisor restarts us.
		logger.Error("alert consumer stopped unexpectedly")
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	logger.Info("notifier stopped")
	if exitCode != 0 {
		cancel()
		consumer.Close()
		os.Exit(exitCode)
	}
}
