package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Reaper is the subset of internal/idempotency.Manager the scheduler needs,
// kept as an interface so this package does not import idempotency.
type Reaper interface {
	ReapExpired(ctx context.Context) (int64, error)
}

// Scheduler drives the batch Service and an idempotency Reaper off one cron
// clock, grounded on scheduler-service/internal/app/scheduler.go's
// cron.New(cron.WithChain(cron.Recover(...))) construction and per-job
// AddFunc registration with logged schedules.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	reaper  Reaper
	logger  *slog.Logger

	pollInterval time.Duration
}

// NewScheduler constructs a Scheduler. reaper may be nil to skip idempotency
// reaping (e.g. in tests exercising only batch processing).
func NewScheduler(service *Service, reaper Reaper, logger *slog.Logger, pollInterval time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{cron: c, service: service, reaper: reaper, logger: logger, pollInterval: pollInterval}
}

// Start registers the batch cut-off sweep and idempotency reap jobs and
// starts the cron clock. Both jobs run on a fixed-interval spec (@every ...)
// rather than a wall-clock cron expression, since the sweep frequency is
// derived from the configured settlement window, not a calendar schedule.
func (s *Scheduler) Start() {
	sweepSpec := "@every " + s.pollInterval.String()
	if _, err := s.cron.AddFunc(sweepSpec, s.runSweep); err != nil {
		s.logger.Error("failed to schedule batch sweep", "schedule", sweepSpec, "error", err)
	} else {
		s.logger.Info("scheduled batch sweep", "schedule", sweepSpec)
	}

	if s.reaper != nil {
		const reapSpec = "@every 5m"
		if _, err := s.cron.AddFunc(reapSpec, s.runReap); err != nil {
			s.logger.Error("failed to schedule idempotency reap", "schedule", reapSpec, "error", err)
		} else {
			s.logger.Info("scheduled idempotency reap", "schedule", reapSpec)
		}
	}

	s.cron.Start()
}

// Stop halts the cron clock and waits for any in-flight job to finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runSweep() {
	ctx := context.Background()
	processed, err := s.service.ProcessDueBatches(ctx, time.Now())
	if err != nil {
		s.logger.Error("batch sweep failed", "error", err)
		return
	}
	if processed > 0 {
		s.logger.Info("batch sweep processed batches", "count", processed)
	}
}

func (s *Scheduler) runReap() {
	ctx := context.Background()
	if _, err := s.reaper.ReapExpired(ctx); err != nil {
		s.logger.Error("idempotency reap failed", "error", err)
	}
}
