// Package scheduler triggers a job on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Defaults applied by New when a non-positive value is given.
const (
	DefaultInterval = time.Hour
	DefaultTimeout  = 30 * time.Minute
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs a Job immediately and then on every tick.
type Scheduler struct {
	job      Job
	interval time.Duration
	timeout  time.Duration
}

// New creates a Scheduler. Each run is bounded by timeout.
func New(job Job, interval, timeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{job: job, interval: interval, timeout: timeout}
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start blocks until ctx is cancelled. Runs never overlap.
func (s *Scheduler) Start(ctx context.Context) {
	log := zap.L().With(zap.String("component", "scheduler"))
	log.Info("starting scheduler",
		zap.Duration("interval", s.interval),
		zap.Duration("timeout", s.timeout),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.run(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.run(ctx, log)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.job(runCtx); err != nil {
		log.Error("scheduled run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	log.Info("scheduled run complete", zap.Duration("elapsed", time.Since(start)))
}
