// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package digest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/database"
	"github.com/permitwatch/permitwatch/internal/digest/delivery"
	"github.com/permitwatch/permitwatch/internal/models"
)

// fakeStore implements Store in memory.
type fakeStore struct {
	mu       sync.Mutex
	subs     []models.Subscription
	permits  []models.Permit
	lastSent map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{lastSent: make(map[string]time.Time)}
}

func (s *fakeStore) ListActiveSubscriptions(_ context.Context) ([]models.Subscription, error) {
	return s.subs, nil
}

func (s *fakeStore) QueryPermits(_ context.Context, filter database.PermitFilter) ([]models.Permit, error) {
	out := make([]models.Permit, 0)
	for _, p := range s.permits {
		if !filter.IngestedAfter.IsZero() && !p.IngestedAt.After(filter.IngestedAfter) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) TouchLastSent(_ context.Context, ids []string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.lastSent[id] = sentAt
	}
	return nil
}

// fakeDispatcher records dispatches and fails cohorts whose subject contains
// any string in failSubjects.
type fakeDispatcher struct {
	mu         sync.Mutex
	dispatches []delivery.SendParams
	failCity   string // fail dispatches whose subject mentions this city filter
}

func (d *fakeDispatcher) ChannelName() string { return "fake" }

func (d *fakeDispatcher) Dispatch(_ context.Context, params *delivery.SendParams) delivery.DeliveryResult {
	d.mu.Lock()
	d.dispatches = append(d.dispatches, *params)
	d.mu.Unlock()

	if d.failCity != "" && containsStr(params.Subject, d.failCity) {
		return delivery.DeliveryResult{
			Recipients:   params.Recipients,
			ErrorCode:    delivery.ErrorCodeConnectionFailed,
			ErrorMessage: "simulated failure",
			IsTransient:  true,
		}
	}
	now := time.Now()
	return delivery.DeliveryResult{Success: true, Recipients: params.Recipients, DeliveredAt: &now}
}

func containsStr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func testDigestConfig() *config.DigestConfig {
	return &config.DigestConfig{
		Window:                  24 * time.Hour,
		MaxConcurrentDispatches: 2,
		DispatchTimeout:         time.Second,
	}
}

func recentPermit(id, city, workClass string) models.Permit {
	return models.Permit{
		PermitID:   id,
		City:       city,
		WorkClass:  workClass,
		IngestedAt: time.Now().Add(-time.Hour),
	}
}

func TestRunSharedCohortDispatchOnce(t *testing.T) {
	// Two subscribers with identical filters share one dispatch and both get
	// last_sent advanced.
	store := newFakeStore()
	store.subs = []models.Subscription{
		sub("1", "a@example.com", "Austin, TX", models.AllWorkClasses),
		sub("2", "b@example.com", "Austin, TX", models.AllWorkClasses),
	}
	store.permits = []models.Permit{recentPermit("P-1", "Austin, TX", "Repair")}

	dispatcher := &fakeDispatcher{}
	svc := NewService(testDigestConfig(), store, dispatcher)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", report.Dispatched)
	}
	if len(dispatcher.dispatches) != 1 {
		t.Fatalf("dispatch count = %d, want 1", len(dispatcher.dispatches))
	}
	recipients := dispatcher.dispatches[0].Recipients
	if len(recipients) != 2 {
		t.Errorf("recipients = %v, want both members", recipients)
	}
	if report.MembersNotified != 2 {
		t.Errorf("members notified = %d, want 2", report.MembersNotified)
	}
	if _, ok := store.lastSent["1"]; !ok {
		t.Error("subscriber 1 last_sent not advanced")
	}
	if _, ok := store.lastSent["2"]; !ok {
		t.Error("subscriber 2 last_sent not advanced")
	}
	if store.lastSent["1"] != store.lastSent["2"] {
		t.Error("cohort members must share the same last_sent timestamp")
	}
}

func TestRunFailureIsolation(t *testing.T) {
	// One cohort's dispatch failure must not block the other cohort, and the
	// failed cohort's last_sent stays untouched.
	store := newFakeStore()
	store.subs = []models.Subscription{
		sub("1", "a@example.com", "Austin, TX", models.AllWorkClasses),
		sub("2", "b@example.com", "Houston, TX", models.AllWorkClasses),
	}
	store.permits = []models.Permit{
		recentPermit("P-1", "Austin, TX", "Repair"),
		recentPermit("P-2", "Houston, TX", "Remodel"),
	}

	dispatcher := &fakeDispatcher{failCity: "Houston, TX"}
	svc := NewService(testDigestConfig(), store, dispatcher)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Dispatched != 1 || report.Failed != 1 {
		t.Errorf("dispatched = %d, failed = %d", report.Dispatched, report.Failed)
	}
	if _, ok := store.lastSent["1"]; !ok {
		t.Error("successful cohort's last_sent not advanced")
	}
	if _, ok := store.lastSent["2"]; ok {
		t.Error("failed cohort's last_sent must stay untouched")
	}
}

func TestRunSkipsEmptyCohorts(t *testing.T) {
	store := newFakeStore()
	store.subs = []models.Subscription{
		sub("1", "a@example.com", "Austin, TX", models.AllWorkClasses),
		sub("2", "b@example.com", "Houston, TX", models.AllWorkClasses),
	}
	// Only Austin has a recent permit.
	store.permits = []models.Permit{recentPermit("P-1", "Austin, TX", "Repair")}

	dispatcher := &fakeDispatcher{}
	svc := NewService(testDigestConfig(), store, dispatcher)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Dispatched != 1 {
		t.Errorf("dispatched = %d, want 1", report.Dispatched)
	}
	if report.EmptyCohorts != 1 {
		t.Errorf("empty cohorts = %d, want 1", report.EmptyCohorts)
	}
	if len(dispatcher.dispatches) != 1 {
		t.Errorf("empty cohort must not dispatch, got %d dispatches", len(dispatcher.dispatches))
	}
	if _, ok := store.lastSent["2"]; ok {
		t.Error("empty cohort's last_sent must stay untouched")
	}
}

func TestRunWindowExcludesOldPermits(t *testing.T) {
	store := newFakeStore()
	store.subs = []models.Subscription{
		sub("1", "a@example.com", models.AllCities, models.AllWorkClasses),
	}
	store.permits = []models.Permit{
		{PermitID: "OLD", City: "Austin, TX", IngestedAt: time.Now().Add(-48 * time.Hour)},
	}

	dispatcher := &fakeDispatcher{}
	svc := NewService(testDigestConfig(), store, dispatcher)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Dispatched != 0 || report.EmptyCohorts != 1 {
		t.Errorf("report = %+v, want everything outside the window skipped", report)
	}
}

func TestRunNoActiveSubscriptions(t *testing.T) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := NewService(testDigestConfig(), store, dispatcher)

	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Cohorts != 0 || len(dispatcher.dispatches) != 0 {
		t.Errorf("expected no-op run, got %+v", report)
	}
}
