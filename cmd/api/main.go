/**
 * @description
 * This is the main entry point for the Heritage API. It loads configuration, connects to
 * PostgreSQL, Redis, RabbitMQ and (optionally) Kafka, builds the core application service
 * and serves the customer, admin and internal HTTP routes until it receives a signal.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/redis/go-redis/v9: PIN verification limiter and the shared price cache.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/prometheus/client_golang: Metrics registry served on /metrics.
 * - internal/api, internal/app, internal/config, internal/store: the service itself.
 * - pkg/rabbitmq, pkg/priceclient, pkg/auditstream: outbound integrations.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agent-support/projectheritag/internal/api"
	"github.com/agent-support/projectheritag/internal/app"
	"github.com/agent-support/projectheritag/internal/config"
	"github.com/agent-support/projectheritag/internal/metrics"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/agent-support/projectheritag/pkg/auditstream"
	"github.com/agent-support/projectheritag/pkg/priceclient"
	rmrabbit "github.com/agent-support/projectheritag/pkg/rabbitmq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwks url must be configured\" env=AUTH_JWKS_URL")
	}
	if cfg.InternalAPIKey == "" {
		log.Println("level=warn component=bootstrap msg=\"internal api key not set; internal endpoints disabled\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting heritage api\" port=%s", cfg.ServerPort)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	redisClient := connectRedis(cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, producer, cfg)
	service.SetMetrics(appMetrics)

	if redisClient != nil {
		service.SetPINAttemptLimiter(app.NewRedisPINAttemptLimiter(redisClient, cfg.RedisKeyPrefix, cfg.PINVerifyRateLimitPerMinute))

		prices := app.NewPriceService(
			redisClient,
			cfg.RedisKeyPrefix,
			time.Duration(cfg.PriceCacheTTLSeconds)*time.Second,
			priceclient.NewClient(cfg.PriceFeedBaseURL, cfg.PriceFeedAPIKey),
		)
		prices.SetMetrics(appMetrics)
		service.SetPriceService(prices)
	} else {
		log.Println("level=warn component=bootstrap msg=\"redis unavailable; pin request limiter and crypto prices disabled\"")
	}

	if len(cfg.KafkaBrokers) > 0 {
		streamer := auditstream.NewKafkaStreamer(cfg.KafkaBrokers, cfg.AdminAuditTopic)
		defer streamer.Close()
		service.SetAuditStreamer(streamer)
		log.Printf("level=info component=bootstrap msg=\"admin audit streaming enabled\" topic=%s brokers=%d", cfg.AdminAuditTopic, len(cfg.KafkaBrokers))
	}

	handlers := api.NewHandlers(service)
	router := api.NewRouter(handlers, service, api.RouterConfig{
		Auth: api.AuthConfig{
			JWKSURL:  cfg.AuthJWKSURL,
			Audience: cfg.AuthAudience,
			Issuer:   cfg.AuthIssuer,
		},
		InternalAPIKey:         cfg.InternalAPIKey,
		AllowedOrigins:         cfg.CORSAllowedOrigins,
		HTTPRateLimitPerMinute: cfg.HTTPRateLimitPerMinute,
		Metrics:                appMetrics,
		Registry:               registry,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// connectRedis returns a pinged client, or nil when Redis is not configured or unreachable.
func connectRedis(rawURL string) *redis.Client {
	if rawURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing\" env=REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed\" err=%v", err)
		return nil
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}
