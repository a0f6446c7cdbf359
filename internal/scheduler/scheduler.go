package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/provisioning/internal/config"
)

const flushTimeout = 30 * time.Second

// CacheFlusher drops cached catalog answers.
type CacheFlusher interface {
	Flush(ctx context.Context) error
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron    *cron.Cron
	flusher CacheFlusher
	cfg     config.CacheConfig
	logger  *zap.Logger
}

// NewScheduler creates a new scheduler instance. Schedules use the standard
// five-field cron syntax.
func NewScheduler(cfg config.CacheConfig, flusher CacheFlusher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:    cron.New(),
		flusher: flusher,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start registers the jobs and starts the scheduler. An empty flush schedule
// disables the cache flush job.
func (s *Scheduler) Start() error {
	if s.cfg.FlushSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.FlushSchedule, s.flushCatalogCache); err != nil {
			return fmt.Errorf("schedule catalog cache flush %q: %w", s.cfg.FlushSchedule, err)
		}
		s.logger.Info("catalog cache flush scheduled", zap.String("schedule", s.cfg.FlushSchedule))
	}

	s.logger.Info("starting scheduler")
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) flushCatalogCache() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := s.flusher.Flush(ctx); err != nil {
		s.logger.Error("scheduled catalog cache flush failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled catalog cache flush completed")
}
