/**
 * @description
 * Scheduled job implementations for the scheduler binary.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/agent-support/projectheritag/internal/config"
	"github.com/agent-support/projectheritag/internal/domain"
	"github.com/agent-support/projectheritag/internal/metrics"
)

const jobTimeout = 30 * time.Second

// JobsRepository defines the database reads needed by the jobs.
type JobsRepository interface {
	CountPendingTransfersOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// PriceRefresher polls the price feed into the shared cache.
type PriceRefresher interface {
	Refresh(ctx context.Context) (*domain.PriceSnapshot, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo    JobsRepository
	prices  PriceRefresher
	metrics *metrics.Metrics
	logger  *slog.Logger
	config  config.Config
	now     func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo JobsRepository, prices PriceRefresher, m *metrics.Metrics, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:    repo,
		prices:  prices,
		metrics: m,
		logger:  logger,
		config:  cfg,
		now:     time.Now,
	}
}

// RefreshPrices polls the price feed for every supported coin.
func (j *Jobs) RefreshPrices() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	snapshot, err := j.prices.Refresh(ctx)
	if err != nil {
		j.logger.Error("failed to refresh prices", "error", err)
		return
	}
	j.logger.Info("price refresh job finished", "coins", len(snapshot.Prices), "fetched_at", snapshot.FetchedAt)
}

// ReportStalePendingTransfers counts pending transfers older than the review threshold.
func (j *Jobs) ReportStalePendingTransfers() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	hours := j.config.PendingTransferStaleHours
	if hours <= 0 {
		hours = 24
	}
	cutoff := j.now().Add(-time.Duration(hours) * time.Hour)

	count, err := j.repo.CountPendingTransfersOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to count stale pending transfers", "error", err)
		return
	}
	j.metrics.SetStaleTransfers(count)

	if count == 0 {
		j.logger.Info("no stale pending transfers", "older_than_hours", hours)
		return
	}
	j.logger.Warn("pending transfers awaiting review", "count", count, "older_than_hours", hours)
}
