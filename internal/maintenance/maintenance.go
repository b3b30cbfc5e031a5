// Package maintenance runs the periodic housekeeping jobs: queue stats
// reporting and tenant cache expiry.
package maintenance

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// QueueStats is the read-only view of the job queue the reporter needs.
type QueueStats interface {
	Depth() int64
	Processed() int64
	DeadLettered() int64
}

// TenantCache expires stale cached tenants.
type TenantCache interface {
	ExpireStale() int
}

type Service struct {
	cron   *cron.Cron
	queue  QueueStats
	cache  TenantCache
	logger *slog.Logger
}

func NewService(queue QueueStats, cache TenantCache, log *slog.Logger) *Service {
	return &Service{
		cron:   cron.New(),
		queue:  queue,
		cache:  cache,
		logger: log.With(slog.String("component", "maintenance")),
	}
}

// Start registers the jobs and launches the scheduler.
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.reportQueueStats); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 5m", s.expireTenants); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("maintenance scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) reportQueueStats() {
	s.logger.Info("queue stats",
		slog.Int64("depth", s.queue.Depth()),
		slog.Int64("processed", s.queue.Processed()),
		slog.Int64("dead_lettered", s.queue.DeadLettered()))
}

func (s *Service) expireTenants() {
	if n := s.cache.ExpireStale(); n > 0 {
		s.logger.Debug("expired stale tenants", slog.Int("count", n))
	}
}
