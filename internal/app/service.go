/**
 * @description
 * This file contains the core business logic for the Heritage API. The `Service`
 * struct orchestrates every customer and admin use case, coordinating between the
 * database repository, the Redis-backed price cache and PIN limiter, the RabbitMQ
 * alert publisher and the Kafka audit stream.
 *
 * Key features:
 * - Gates every money movement behind the server-owned transfer PIN.
 * - Delegates each balance mutation to a single repository call that runs in one
 *   database transaction.
 * - Publishes alerts and audit events after commit, best-effort.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store, internal/config, internal/metrics.
 * - pkg/rabbitmq, pkg/auditstream: For outbound events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/agent-support/projectheritag/internal/config"
	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/metrics"
	"github.com/agent-support/projectheritag/internal/store"
	"github.com/agent-support/projectheritag/pkg/auditstream"
	"github.com/agent-support/projectheritag/pkg/rabbitmq"
	"github.com/google/uuid"
)

var (
	ErrTransactionPINLocked  = errors.New("transaction PIN is temporarily locked")
	ErrInvalidTransactionPIN = errors.New("invalid transaction PIN")
	ErrPINRateLimited        = errors.New("too many PIN verification requests")
	ErrInvalidPINFormat      = errors.New("PIN must be 4 digits")
	ErrPINMismatch           = errors.New("PINs don't match")

	ErrInvalidTransferAmount = errors.New("Amount must be greater than 0")
	ErrMissingRecipient      = errors.New("recipient name and account are required")
	ErrCountryRequired       = errors.New("recipient country is required for international transfers")
	ErrInvalidTransferType   = errors.New("transfer type must be local or international")
	ErrRecipientNotFound     = errors.New("User with this username or account number does not exist")
	ErrSelfTransfer          = errors.New("You cannot send money to yourself")

	ErrProfileRequired         = errors.New("email is required")
	ErrEmptyUpdate             = errors.New("no fields to update")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrInvalidBalanceOperation = errors.New("operation must be add or subtract")
	ErrInvalidAmount           = errors.New("amount must be greater than 0")
	ErrNegativeFee             = errors.New("fee cannot be negative")
	ErrForbidden               = errors.New("admin role required")

	ErrUnsupportedCoin     = errors.New("unsupported coin")
	ErrPriceUnavailable    = errors.New("price data is unavailable")
	ErrDestinationRequired = errors.New("destination address is required")
)

// RateLimitError is returned when a Redis window rejects a call. It matches ErrPINRateLimited.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry in %ds", ErrPINRateLimited.Error(), e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrPINRateLimited }

// InsufficientFundsError carries the figures shown to a customer whose transfer is short.
// It matches store.ErrInsufficientFunds.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Insufficient funds. You need $%s but only have $%s",
		domain.FormatCents(e.Required), domain.FormatCents(e.Available))
}

func (e *InsufficientFundsError) Unwrap() error { return store.ErrInsufficientFunds }

// PINAttemptLimiter throttles PIN verification requests per user ahead of the persistent lockout.
type PINAttemptLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (PINAttemptDecision, error)
}

// Service provides the core business logic for the banking API.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	pinLimiter    PINAttemptLimiter
	prices        *PriceService
	audit         auditstream.Streamer
	metrics       *metrics.Metrics
	config        config.Config
	now           func() time.Time
}

// NewService creates a new service instance. Optional collaborators are attached with the Set* methods.
func NewService(repo store.Repository, producer rabbitmq.Publisher, cfg config.Config) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		repo:          repo,
		eventProducer: producer,
		audit:         auditstream.NoopStreamer{},
		config:        cfg,
		now:           time.Now,
	}
}

func (s *Service) SetPINAttemptLimiter(limiter PINAttemptLimiter) { s.pinLimiter = limiter }

func (s *Service) SetPriceService(prices *PriceService) { s.prices = prices }

func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

func (s *Service) SetAuditStreamer(streamer auditstream.Streamer) {
	if streamer == nil {
		streamer = auditstream.NoopStreamer{}
	}
	s.audit = streamer
}

// IsAdmin reports whether the user holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return s.repo.HasRole(ctx, userID, domain.RoleAdmin)
}

// publishAlert sends a customer alert after commit. Failures are logged and never surface.
func (s *Service) publishAlert(ctx context.Context, event domain.AlertEvent) {
	if event.Email == "" {
		log.Printf("level=info component=app flow=alert outcome=skip reason=no_email kind=%s tx=%s", event.Kind, event.TransactionID)
		return
	}
	if err := s.eventProducer.Publish(ctx, domain.EventsExchange, event.RoutingKey(), event); err != nil {
		log.Printf("level=warn component=app flow=alert outcome=publish_failed kind=%s tx=%s err=%v", event.Kind, event.TransactionID, err)
		s.metrics.ObserveAlertPublished(event.Kind, "error")
		return
	}
	s.metrics.ObserveAlertPublished(event.Kind, "ok")
}

// streamAudit forwards a committed admin log to the audit stream.
func (s *Service) streamAudit(ctx context.Context, entry *domain.AdminLog) {
	if entry == nil {
		return
	}
	if err := s.audit.PublishAudit(ctx, domain.AuditEventFromLog(*entry)); err != nil {
		log.Printf("level=warn component=app flow=audit outcome=stream_failed action=%s admin=%s err=%v", entry.ActionType, entry.AdminID, err)
		s.metrics.ObserveAuditEvent(entry.ActionType, "error")
		return
	}
	s.metrics.ObserveAuditEvent(entry.ActionType, "ok")
}
