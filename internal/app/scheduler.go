/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/agent-support/projectheritag/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns the number of jobs scheduled.
func (s *Scheduler) Start() int {
	scheduled := 0
	if s.jobs.prices == nil {
		s.logger.Warn("price cache unavailable; price refresh job not scheduled")
	} else if _, err := s.cron.AddFunc(s.config.PriceRefreshSchedule, s.jobs.RefreshPrices); err != nil {
		s.logger.Error("failed to schedule price refresh job", "error", err)
	} else {
		scheduled++
		s.logger.Info("scheduled price refresh job", "schedule", s.config.PriceRefreshSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.PendingTransferReportSchedule, s.jobs.ReportStalePendingTransfers); err != nil {
		s.logger.Error("failed to schedule stale transfer report job", "error", err)
	} else {
		scheduled++
		s.logger.Info("scheduled stale transfer report job", "schedule", s.config.PendingTransferReportSchedule)
	}

	s.cron.Start()
	return scheduled
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
