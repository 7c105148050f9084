// Package retention runs the periodic housekeeping jobs: pruning old chat
// history and metrics, and dropping idle rate-limit buckets.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes rows created before cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs jobs on cron schedules in UTC.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	now    func() time.Time
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		now:    time.Now,
	}
}

// AddJob registers fn under a standard cron spec or descriptor such as
// "@daily" or "@every 5m".
func (s *Scheduler) AddJob(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.Error("scheduled job failed",
				slog.String("job", name),
				slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("scheduled job finished",
			slog.String("job", name),
			slog.Duration("duration", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// AddPrune schedules deletion of everything older than maxAge.
func (s *Scheduler) AddPrune(spec string, p Pruner, maxAge time.Duration) error {
	if maxAge <= 0 {
		return fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}
	return s.AddJob(spec, "prune", func(ctx context.Context) error {
		_, err := PruneOnce(ctx, p, s.now(), maxAge, s.logger)
		return err
	})
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs and cancels their context.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info("scheduler stopped")
}

// Jobs returns how many jobs are registered.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// PruneOnce removes rows older than now-maxAge.
func PruneOnce(ctx context.Context, p Pruner, now time.Time, maxAge time.Duration, logger *slog.Logger) (int64, error) {
	cutoff := now.Add(-maxAge)
	n, err := p.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	logger.Info("pruned conversation data",
		slog.Int64("rows", n),
		slog.Time("cutoff", cutoff))
	return n, nil
}
