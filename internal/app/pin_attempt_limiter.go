package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PINAttemptDecision is the verdict for a single PIN verification request.
type PINAttemptDecision struct {
	Allowed    bool
	Attempts   int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below one.
func (d PINAttemptDecision) RetryAfterSeconds() int {
	seconds := int((d.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// RedisPINAttemptLimiter caps how many PIN verifications a user may submit per minute.
// Every replica shares the same Redis counter, so the cap holds across the fleet.
type RedisPINAttemptLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	perMinute int
}

func NewRedisPINAttemptLimiter(client redis.UniversalClient, keyPrefix string, perMinute int) *RedisPINAttemptLimiter {
	keyPrefix = strings.TrimSuffix(strings.TrimSpace(keyPrefix), ":")
	if keyPrefix == "" {
		keyPrefix = "heritage"
	}
	return &RedisPINAttemptLimiter{client: client, keyPrefix: keyPrefix, perMinute: perMinute}
}

func (l *RedisPINAttemptLimiter) key(userID uuid.UUID) string {
	return l.keyPrefix + ":pin_attempts:" + userID.String()
}

// Allow counts one attempt for userID. The first attempt opens a one-minute window;
// later attempts in that window share its expiry.
func (l *RedisPINAttemptLimiter) Allow(ctx context.Context, userID uuid.UUID) (PINAttemptDecision, error) {
	if l == nil || l.client == nil || l.perMinute <= 0 {
		return PINAttemptDecision{Allowed: true}, nil
	}

	key := l.key(userID)
	var attempts *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, time.Minute)
		attempts = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return PINAttemptDecision{}, fmt.Errorf("pin attempt window %s: %w", key, err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = time.Minute
	}
	count := int(attempts.Val())
	return PINAttemptDecision{
		Allowed:    count <= l.perMinute,
		Attempts:   count,
		RetryAfter: remaining,
	}, nil
}
