package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"BountyScanner/internal/ports"
)

// SchedulerDeps wires the cron driver with both pipeline cycles.
type SchedulerDeps struct {
	Driver        ports.Scheduler
	Pipeline      *Pipeline
	CollectSpec   string
	DigestSpec    string
	CollectWindow time.Duration
	DigestOpts    DigestOptions
	Logger        zerolog.Logger
}

// Scheduler runs collect and digest cycles on their cron schedules.
// Cycle errors are logged here and never escape; unsent records stay
// pending, so the next tick retries naturally.
type Scheduler struct {
	deps SchedulerDeps
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	return &Scheduler{deps: deps}
}

// Start registers both cycles with the driver and begins scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	err := s.deps.Driver.Schedule(s.deps.CollectSpec, func(time.Time) {
		if _, err := s.deps.Pipeline.Collect(ctx, s.deps.CollectWindow); err != nil {
			s.deps.Logger.Error().Err(err).Msg("collect cycle failed")
		}
	})
	if err != nil {
		return err
	}

	err = s.deps.Driver.Schedule(s.deps.DigestSpec, func(t time.Time) {
		if err := s.deps.Pipeline.Digest(ctx, t, s.deps.DigestOpts); err != nil {
			s.deps.Logger.Error().Err(err).Msg("digest cycle failed")
		}
	})
	if err != nil {
		return err
	}

	s.deps.Driver.Start()
	return nil
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.deps.Driver.Stop(ctx)
}
