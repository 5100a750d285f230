// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/logging"
)

// Clock abstracts time for the scheduler loop so tests can advance it.
type Clock interface {
	Now() time.Time
}

// realClock is the production clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Job is one recurring task driven by a cron schedule.
type Job struct {
	// Name identifies the job in logs.
	Name string

	// Spec is the 5-field cron expression.
	Spec string

	// Run executes the job. Errors are logged, never fatal; the job stays
	// scheduled for its next firing.
	Run func(ctx context.Context) error
}

// jobState tracks a job's parsed schedule and pending firing.
type jobState struct {
	job      Job
	schedule *Schedule
	nextRun  time.Time
}

// Scheduler fires registered jobs on their cron schedules.
//
// The loop wakes on a short check interval and compares each job's
// precomputed next-run time against the clock. A missed interval (process
// asleep, long job) fires at most one catch-up run, then realigns to the
// next future firing.
type Scheduler struct {
	cfg   *config.SchedulerConfig
	loc   *time.Location
	clock Clock
	jobs  []*jobState
	log   zerolog.Logger
}

// New creates a scheduler for the given jobs.
func New(cfg *config.SchedulerConfig, jobs []Job) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
		}
	}

	s := &Scheduler{
		cfg:   cfg,
		loc:   loc,
		clock: realClock{},
		log:   logging.With().Str("component", "scheduler").Logger(),
	}
	for _, job := range jobs {
		schedule, err := Parse(job.Spec)
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", job.Name, err)
		}
		s.jobs = append(s.jobs, &jobState{job: job, schedule: schedule})
	}
	return s, nil
}

// SetClock replaces the scheduler clock. Tests only.
func (s *Scheduler) SetClock(clock Clock) {
	s.clock = clock
}

// Serve runs the scheduler loop until ctx is canceled. It implements
// suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info().Msg("Scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	now := s.clock.Now().In(s.loc)
	for _, state := range s.jobs {
		state.nextRun = state.schedule.Next(now)
		s.log.Info().
			Str("job", state.job.Name).
			Str("spec", state.job.Spec).
			Time("next_run", state.nextRun).
			Msg("Job scheduled")
	}

	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue fires every job whose next-run time has passed.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.clock.Now().In(s.loc)
	for _, state := range s.jobs {
		if state.nextRun.IsZero() {
			// First pass aligns the job without firing it.
			state.nextRun = state.schedule.Next(now)
			continue
		}
		if now.Before(state.nextRun) {
			continue
		}
		s.runJob(ctx, state)
		state.nextRun = state.schedule.Next(now)
	}
}

// runJob executes one job synchronously. Jobs run in loop order; the digest
// job is scheduled after ingestion by configuration, and running them on the
// same goroutine keeps that ordering even when both fire in one wake-up.
func (s *Scheduler) runJob(ctx context.Context, state *jobState) {
	start := s.clock.Now()
	s.log.Info().Str("job", state.job.Name).Msg("Running scheduled job")

	if err := state.job.Run(ctx); err != nil {
		s.log.Error().Err(err).
			Str("job", state.job.Name).
			Dur("duration", s.clock.Now().Sub(start)).
			Msg("Scheduled job failed")
		return
	}
	s.log.Info().
		Str("job", state.job.Name).
		Dur("duration", s.clock.Now().Sub(start)).
		Msg("Scheduled job finished")
}

// RunDueNow forces one due-check pass. Tests drive the scheduler through
// this instead of waiting on the ticker.
func (s *Scheduler) RunDueNow(ctx context.Context) {
	s.runDue(ctx)
}

// NextRuns reports each job's pending firing time, keyed by job name.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time, len(s.jobs))
	for _, state := range s.jobs {
		out[state.job.Name] = state.nextRun
	}
	return out
}
