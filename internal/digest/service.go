// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package digest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/database"
	"github.com/permitwatch/permitwatch/internal/digest/delivery"
	"github.com/permitwatch/permitwatch/internal/logging"
	"github.com/permitwatch/permitwatch/internal/metrics"
	"github.com/permitwatch/permitwatch/internal/models"
)

// Store is the database surface the digest service needs.
type Store interface {
	ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
	QueryPermits(ctx context.Context, filter database.PermitFilter) ([]models.Permit, error)
	TouchLastSent(ctx context.Context, ids []string, sentAt time.Time) error
}

// Dispatcher sends one rendered cohort digest.
type Dispatcher interface {
	ChannelName() string
	Dispatch(ctx context.Context, params *delivery.SendParams) delivery.DeliveryResult
}

// RunReport summarizes one digest run.
type RunReport struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	Cohorts         int `json:"cohorts"`
	EmptyCohorts    int `json:"empty_cohorts"`
	Dispatched      int `json:"dispatched"`
	Failed          int `json:"failed"`
	MembersNotified int `json:"members_notified"`
}

// Service runs the digest pipeline.
type Service struct {
	cfg        *config.DigestConfig
	store      Store
	dispatcher Dispatcher
	log        zerolog.Logger

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewService creates a digest service.
func NewService(cfg *config.DigestConfig, store Store, dispatcher Dispatcher) *Service {
	return &Service{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		log:        logging.With().Str("component", "digest-service").Logger(),
		now:        time.Now,
	}
}

// Run executes one full digest pass.
//
// The eligible permit set is a fixed trailing window over ingestion time,
// computed once at run start so every cohort in the run sees the same
// snapshot. Cohort dispatches run in parallel up to the configured bound;
// one cohort's failure never blocks another's. last_sent advances only for
// members of cohorts whose dispatch the transport confirmed.
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	runStart := s.now()
	report := &RunReport{StartedAt: runStart}

	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		metrics.DigestRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	if len(subs) == 0 {
		s.log.Info().Msg("No active subscriptions, skipping digest run")
		report.CompletedAt = s.now()
		metrics.DigestRuns.WithLabelValues("success").Inc()
		return report, nil
	}

	cohorts := GroupCohorts(subs)
	report.Cohorts = len(cohorts)

	permits, err := s.store.QueryPermits(ctx, database.PermitFilter{
		IngestedAfter: runStart.Add(-s.cfg.Window),
	})
	if err != nil {
		metrics.DigestRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to query recent permits: %w", err)
	}

	s.log.Info().
		Int("subscriptions", len(subs)).
		Int("cohorts", len(cohorts)).
		Int("recent_permits", len(permits)).
		Dur("window", s.cfg.Window).
		Msg("Starting digest run")

	type cohortOutcome struct {
		cohort  models.Cohort
		sent    bool
		skipped bool
	}

	parallelism := s.cfg.MaxConcurrentDispatches
	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > len(cohorts) {
		parallelism = len(cohorts)
	}

	jobs := make(chan models.Cohort, len(cohorts))
	outcomes := make(chan cohortOutcome, len(cohorts))
	var wg sync.WaitGroup

	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cohort := range jobs {
				sent, skipped := s.dispatchCohort(ctx, cohort, permits, runStart)
				outcomes <- cohortOutcome{cohort: cohort, sent: sent, skipped: skipped}
			}
		}()
	}
	for _, cohort := range cohorts {
		jobs <- cohort
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	sentAt := s.now()
	for outcome := range outcomes {
		switch {
		case outcome.skipped:
			report.EmptyCohorts++
		case outcome.sent:
			report.Dispatched++
			ids := make([]string, 0, len(outcome.cohort.Members))
			for _, m := range outcome.cohort.Members {
				ids = append(ids, m.ID)
			}
			if err := s.store.TouchLastSent(ctx, ids, sentAt); err != nil {
				// Dispatch went out; the next run may re-send to this cohort.
				s.log.Error().Err(err).
					Str("city_filter", outcome.cohort.Key.CityFilter).
					Str("work_class_filter", outcome.cohort.Key.WorkClassFilter).
					Msg("Failed to record last_sent after successful dispatch")
			} else {
				report.MembersNotified += len(ids)
			}
		default:
			report.Failed++
		}
	}

	report.CompletedAt = s.now()

	status := "success"
	if report.Failed > 0 {
		status = "partial"
	}
	metrics.DigestRuns.WithLabelValues(status).Inc()

	s.log.Info().
		Int("dispatched", report.Dispatched).
		Int("failed", report.Failed).
		Int("empty", report.EmptyCohorts).
		Int("members_notified", report.MembersNotified).
		Dur("duration", report.CompletedAt.Sub(report.StartedAt)).
		Msg("Digest run finished")
	return report, nil
}

// dispatchCohort renders and sends one cohort's digest.
// Returns (sent, skipped): skipped means the cohort matched no permits and
// nothing was sent, which is the expected quiet-day outcome.
func (s *Service) dispatchCohort(ctx context.Context, cohort models.Cohort, permits []models.Permit, runStart time.Time) (bool, bool) {
	matched := FilterPermits(permits, cohort.Key)
	if len(matched) == 0 {
		metrics.DigestsDispatched.WithLabelValues(s.dispatcher.ChannelName(), "skipped_empty").Inc()
		return false, true
	}

	rendered, err := Render(cohort.Key, matched, runStart)
	if err != nil {
		s.log.Error().Err(err).
			Str("city_filter", cohort.Key.CityFilter).
			Str("work_class_filter", cohort.Key.WorkClassFilter).
			Msg("Failed to render digest")
		metrics.RecordDispatch(s.dispatcher.ChannelName(), "failed", 0, 0)
		return false, false
	}

	dispatchCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.DispatchTimeout > 0 {
		dispatchCtx, cancel = context.WithTimeout(ctx, s.cfg.DispatchTimeout)
		defer cancel()
	}

	start := time.Now()
	result := s.dispatcher.Dispatch(dispatchCtx, &delivery.SendParams{
		Recipients: cohort.Recipients(),
		Subject:    rendered.Subject,
		BodyHTML:   rendered.BodyHTML,
		BodyText:   rendered.BodyText,
	})
	duration := time.Since(start)

	if !result.Success {
		s.log.Warn().
			Str("city_filter", cohort.Key.CityFilter).
			Str("work_class_filter", cohort.Key.WorkClassFilter).
			Str("error_code", result.ErrorCode).
			Str("error", result.ErrorMessage).
			Int("members", len(cohort.Members)).
			Msg("Cohort dispatch failed")
		metrics.RecordDispatch(s.dispatcher.ChannelName(), "failed", duration, 0)
		return false, false
	}

	s.log.Info().
		Str("city_filter", cohort.Key.CityFilter).
		Str("work_class_filter", cohort.Key.WorkClassFilter).
		Int("permits", len(matched)).
		Int("members", len(cohort.Members)).
		Msg("Cohort digest dispatched")
	metrics.RecordDispatch(s.dispatcher.ChannelName(), "sent", duration, len(cohort.Members))
	return true, false
}
