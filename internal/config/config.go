/**
 * @description
 * This package handles the configuration management for the Heritage binaries
 * (api, scheduler, notifier). It uses the Viper library to read configuration from
 * environment variables and an optional .env file, then normalizes the values.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables shared by the Heritage binaries.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	AlertQueue  string `mapstructure:"ALERT_QUEUE"`

	KafkaBrokersRaw string   `mapstructure:"KAFKA_BROKERS"`
	KafkaBrokers    []string `mapstructure:"-"`
	AdminAuditTopic string   `mapstructure:"ADMIN_AUDIT_TOPIC"`

	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	CORSAllowedOriginsRaw  string   `mapstructure:"CORS_ALLOWED_ORIGINS"`
	CORSAllowedOrigins     []string `mapstructure:"-"`
	HTTPRateLimitPerMinute int      `mapstructure:"HTTP_RATE_LIMIT_PER_MINUTE"`

	PINMaxAttempts              int `mapstructure:"PIN_MAX_ATTEMPTS"`
	PINLockoutSeconds           int `mapstructure:"PIN_LOCKOUT_SECONDS"`
	PINVerifyRateLimitPerMinute int `mapstructure:"PIN_VERIFY_RATE_LIMIT_PER_MINUTE"`

	PriceFeedBaseURL     string `mapstructure:"PRICE_FEED_BASE_URL"`
	PriceFeedAPIKey      string `mapstructure:"PRICE_FEED_API_KEY"`
	PriceRefreshSchedule string `mapstructure:"PRICE_REFRESH_SCHEDULE"`
	PriceCacheTTLSeconds int    `mapstructure:"PRICE_CACHE_TTL_SECONDS"`

	PendingTransferReportSchedule string `mapstructure:"PENDING_TRANSFER_REPORT_SCHEDULE"`
	PendingTransferStaleHours     int    `mapstructure:"PENDING_TRANSFER_STALE_HOURS"`

	AlertBaseURL string `mapstructure:"ALERT_BASE_URL"`
	AlertAPIKey  string `mapstructure:"ALERT_API_KEY"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "heritage")
	viper.SetDefault("ALERT_QUEUE", "notifier.alerts")
	viper.SetDefault("ADMIN_AUDIT_TOPIC", "heritage.admin-audit")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("HTTP_RATE_LIMIT_PER_MINUTE", 300)
	viper.SetDefault("PIN_MAX_ATTEMPTS", 5)
	viper.SetDefault("PIN_LOCKOUT_SECONDS", 900)
	viper.SetDefault("PIN_VERIFY_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PRICE_FEED_BASE_URL", "https://api.coingecko.com/api/v3")
	viper.SetDefault("PRICE_REFRESH_SCHEDULE", "@every 60s")
	viper.SetDefault("PRICE_CACHE_TTL_SECONDS", 300)
	viper.SetDefault("PENDING_TRANSFER_REPORT_SCHEDULE", "@every 1h")
	viper.SetDefault("PENDING_TRANSFER_STALE_HOURS", 24)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ALERT_QUEUE")
	_ = viper.BindEnv("KAFKA_BROKERS")
	_ = viper.BindEnv("ADMIN_AUDIT_TOPIC")
	_ = viper.BindEnv("AUTH_JWKS_URL", "AUTH_JWKS_URL", "CLERK_JWKS_URL")
	_ = viper.BindEnv("AUTH_AUDIENCE", "AUTH_AUDIENCE", "CLERK_AUDIENCE")
	_ = viper.BindEnv("AUTH_ISSUER", "AUTH_ISSUER", "CLERK_ISSUER")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("HTTP_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("PIN_LOCKOUT_SECONDS")
	_ = viper.BindEnv("PIN_VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PRICE_FEED_BASE_URL")
	_ = viper.BindEnv("PRICE_FEED_API_KEY")
	_ = viper.BindEnv("PRICE_REFRESH_SCHEDULE")
	_ = viper.BindEnv("PRICE_CACHE_TTL_SECONDS")
	_ = viper.BindEnv("PENDING_TRANSFER_REPORT_SCHEDULE")
	_ = viper.BindEnv("PENDING_TRANSFER_STALE_HOURS")
	_ = viper.BindEnv("ALERT_BASE_URL")
	_ = viper.BindEnv("ALERT_API_KEY")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "heritage"
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.AlertBaseURL = strings.TrimRight(strings.TrimSpace(config.AlertBaseURL), "/")
	config.PriceFeedBaseURL = strings.TrimRight(strings.TrimSpace(config.PriceFeedBaseURL), "/")

	config.KafkaBrokers = splitList(config.KafkaBrokersRaw)
	config.CORSAllowedOrigins = splitList(config.CORSAllowedOriginsRaw)
	if len(config.CORSAllowedOrigins) == 0 {
		config.CORSAllowedOrigins = []string{"https://*", "http://*"}
	}

	if config.PINMaxAttempts <= 0 {
		config.PINMaxAttempts = 5
	}
	if config.PINLockoutSeconds <= 0 {
		config.PINLockoutSeconds = 900
	}
	if config.PINVerifyRateLimitPerMinute <= 0 {
		config.PINVerifyRateLimitPerMinute = 10
	}
	if config.HTTPRateLimitPerMinute <= 0 {
		config.HTTPRateLimitPerMinute = 300
	}
	if config.PriceCacheTTLSeconds < 60 {
		log.Printf("level=warn component=config msg=\"price cache ttl too short; raising to 60s\" ttl_seconds=%d", config.PriceCacheTTLSeconds)
		config.PriceCacheTTLSeconds = 60
	}
	if strings.TrimSpace(config.PriceRefreshSchedule) == "" {
		config.PriceRefreshSchedule = "@every 60s"
	}
	if strings.TrimSpace(config.PendingTransferReportSchedule) == "" {
		config.PendingTransferReportSchedule = "@every 1h"
	}
	if config.PendingTransferStaleHours <= 0 {
		config.PendingTransferStaleHours = 24
	}

	return
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
