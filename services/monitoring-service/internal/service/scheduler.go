package service

import (
	"context"
	"time"

	"github.com/grigta/adpulse/pkg/logger"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

const schedulerWorker = "monitoring_scheduler"

// Runner is satisfied by *Orchestrator.
type Runner interface {
	RunMonitoring(ctx context.Context, req models.RunRequest) (*models.RunResult, error)
}

// Scheduler triggers a full monitoring pass on a fixed interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   logger.Logger
}

func NewScheduler(runner Runner, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, logger: log}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Monitoring scheduler started")

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			s.logger.Info("Stopping monitoring scheduler")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	RecordWorkerRun(schedulerWorker)
	if _, err := s.runner.RunMonitoring(ctx, models.RunRequest{TriggeredBy: "scheduler"}); err != nil {
		s.logger.WithError(err).Error("Scheduled monitoring run failed")
		RecordWorkerError(schedulerWorker)
	}
}
