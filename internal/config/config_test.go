package config

import (
	"os"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"PORT", "SERVER_PORT", "PIN_MAX_ATTEMPTS", "PIN_LOCKOUT_SECONDS",
		"PIN_VERIFY_RATE_LIMIT_PER_MINUTE", "KAFKA_BROKERS", "CORS_ALLOWED_ORIGINS",
		"PRICE_REFRESH_SCHEDULE", "PRICE_CACHE_TTL_SECONDS", "REDIS_KEY_PREFIX",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.PINMaxAttempts != 5 || cfg.PINLockoutSeconds != 900 || cfg.PINVerifyRateLimitPerMinute != 10 {
		t.Fatalf("unexpected PIN defaults: %+v", cfg)
	}
	if cfg.PriceRefreshSchedule != "@every 60s" {
		t.Fatalf("expected 60s price refresh, got %q", cfg.PriceRefreshSchedule)
	}
	if cfg.RedisKeyPrefix != "heritage" {
		t.Fatalf("expected default redis prefix, got %q", cfg.RedisKeyPrefix)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no kafka brokers by default, got %v", cfg.KafkaBrokers)
	}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, []string{"https://*", "http://*"}) {
		t.Fatalf("unexpected default origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "7000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_JWKSURLAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "AUTH_JWKS_URL")
	setEnvWithCleanup(t, "CLERK_JWKS_URL", "https://issuer.example/.well-known/jwks.json")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AuthJWKSURL != "https://issuer.example/.well-known/jwks.json" {
		t.Fatalf("expected JWKS URL from alias, got %q", cfg.AuthJWKSURL)
	}
}

func TestLoadConfig_SplitsListsAndClampsValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	setEnvWithCleanup(t, "PIN_MAX_ATTEMPTS", "-3")
	setEnvWithCleanup(t, "PRICE_CACHE_TTL_SECONDS", "5")
	setEnvWithCleanup(t, "ALERT_BASE_URL", "https://alerts.example/functions/v1/")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.PINMaxAttempts != 5 {
		t.Fatalf("expected non-positive attempts to fall back to 5, got %d", cfg.PINMaxAttempts)
	}
	if cfg.PriceCacheTTLSeconds != 60 {
		t.Fatalf("expected ttl clamped to 60, got %d", cfg.PriceCacheTTLSeconds)
	}
	if cfg.AlertBaseURL != "https://alerts.example/functions/v1" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.AlertBaseURL)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
