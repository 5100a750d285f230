// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/permitwatch/permitwatch/internal/config"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testSchedulerConfig() *config.SchedulerConfig {
	return &config.SchedulerConfig{
		Enabled:       true,
		CheckInterval: 30 * time.Second,
	}
}

func TestSchedulerFiresDueJob(t *testing.T) {
	var runs int
	jobs := []Job{{
		Name: "ingest",
		Spec: "0 6 * * *",
		Run: func(context.Context) error {
			runs++
			return nil
		},
	}}

	s, err := New(testSchedulerConfig(), jobs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 5, 0, 0, 0, time.UTC)}
	s.SetClock(clock)

	ctx := context.Background()

	// First pass aligns the job without firing.
	s.RunDueNow(ctx)
	if runs != 0 {
		t.Fatalf("job fired during alignment, runs = %d", runs)
	}
	next := s.NextRuns()["ingest"]
	want := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next run = %v, want %v", next, want)
	}

	// Before the firing minute: nothing happens.
	clock.Advance(30 * time.Minute) // 05:30
	s.RunDueNow(ctx)
	if runs != 0 {
		t.Fatalf("job fired early, runs = %d", runs)
	}

	// Past the firing minute: fires exactly once and realigns to tomorrow.
	clock.Advance(31 * time.Minute) // 06:01
	s.RunDueNow(ctx)
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
	s.RunDueNow(ctx)
	if runs != 1 {
		t.Fatalf("job double-fired, runs = %d", runs)
	}
	next = s.NextRuns()["ingest"]
	want = time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("realigned next run = %v, want %v", next, want)
	}
}

func TestSchedulerMissedIntervalFiresOnce(t *testing.T) {
	var runs int
	jobs := []Job{{
		Name: "ingest",
		Spec: "0 * * * *", // hourly
		Run: func(context.Context) error {
			runs++
			return nil
		},
	}}

	s, err := New(testSchedulerConfig(), jobs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 5, 30, 0, 0, time.UTC)}
	s.SetClock(clock)

	ctx := context.Background()
	s.RunDueNow(ctx) // align: next = 06:00

	// Sleep through three firings; a single catch-up run happens.
	clock.Advance(3*time.Hour + time.Minute) // 08:31
	s.RunDueNow(ctx)
	if runs != 1 {
		t.Fatalf("missed intervals must collapse to one run, got %d", runs)
	}
	next := s.NextRuns()["ingest"]
	want := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next run = %v, want %v", next, want)
	}
}

func TestSchedulerOrderingWithinPass(t *testing.T) {
	// Ingest and digest due in the same pass run in registration order.
	var order []string
	jobs := []Job{
		{
			Name: "ingest",
			Spec: "0 6 * * *",
			Run: func(context.Context) error {
				order = append(order, "ingest")
				return nil
			},
		},
		{
			Name: "digest",
			Spec: "0 7 * * *",
			Run: func(context.Context) error {
				order = append(order, "digest")
				return nil
			},
		},
	}

	s, err := New(testSchedulerConfig(), jobs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 5, 0, 0, 0, time.UTC)}
	s.SetClock(clock)

	ctx := context.Background()
	s.RunDueNow(ctx)                        // align
	clock.Advance(2*time.Hour + time.Minute) // 07:01, both due
	s.RunDueNow(ctx)

	if len(order) != 2 || order[0] != "ingest" || order[1] != "digest" {
		t.Errorf("order = %v, want [ingest digest]", order)
	}
}

func TestSchedulerJobErrorDoesNotUnschedule(t *testing.T) {
	var runs int
	jobs := []Job{{
		Name: "flaky",
		Spec: "0 * * * *",
		Run: func(context.Context) error {
			runs++
			return context.DeadlineExceeded
		},
	}}

	s, err := New(testSchedulerConfig(), jobs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 8, 28, 5, 30, 0, 0, time.UTC)}
	s.SetClock(clock)

	ctx := context.Background()
	s.RunDueNow(ctx)
	clock.Advance(31 * time.Minute)
	s.RunDueNow(ctx)
	clock.Advance(time.Hour)
	s.RunDueNow(ctx)

	if runs != 2 {
		t.Errorf("runs = %d, want 2 (failure keeps the schedule)", runs)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(testSchedulerConfig(), []Job{{Name: "bad", Spec: "not a cron"}})
	if err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
