// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package digest

import (
	"testing"

	"github.com/permitwatch/permitwatch/internal/models"
)

func sub(id, email, city, workClass string) models.Subscription {
	return models.Subscription{
		ID:              id,
		Email:           email,
		CityFilter:      city,
		WorkClassFilter: workClass,
		Frequency:       models.FrequencyDaily,
		Active:          true,
	}
}

func TestGroupCohorts(t *testing.T) {
	subs := []models.Subscription{
		sub("1", "a@example.com", "Austin, TX", "Repair"),
		sub("2", "b@example.com", models.AllCities, models.AllWorkClasses),
		sub("3", "c@example.com", "Austin, TX", "Repair"),
		sub("4", "d@example.com", "Houston, TX", models.AllWorkClasses),
	}

	cohorts := GroupCohorts(subs)
	if len(cohorts) != 3 {
		t.Fatalf("cohorts = %d, want 3", len(cohorts))
	}

	// Deterministic order: sorted by city filter, then work class filter.
	if cohorts[0].Key.CityFilter != models.AllCities {
		t.Errorf("cohort 0 key = %+v", cohorts[0].Key)
	}
	if cohorts[1].Key.CityFilter != "Austin, TX" || cohorts[1].Key.WorkClassFilter != "Repair" {
		t.Errorf("cohort 1 key = %+v", cohorts[1].Key)
	}
	if cohorts[2].Key.CityFilter != "Houston, TX" {
		t.Errorf("cohort 2 key = %+v", cohorts[2].Key)
	}

	// Members keep input order within the cohort.
	austin := cohorts[1]
	if len(austin.Members) != 2 {
		t.Fatalf("austin cohort members = %d, want 2", len(austin.Members))
	}
	if austin.Members[0].ID != "1" || austin.Members[1].ID != "3" {
		t.Errorf("member order = %s, %s", austin.Members[0].ID, austin.Members[1].ID)
	}

	got := austin.Recipients()
	if len(got) != 2 || got[0] != "a@example.com" || got[1] != "c@example.com" {
		t.Errorf("recipients = %v", got)
	}
}

func TestGroupCohortsWildcardIsDistinctKey(t *testing.T) {
	subs := []models.Subscription{
		sub("1", "a@example.com", models.AllCities, "Repair"),
		sub("2", "b@example.com", "Austin, TX", "Repair"),
	}
	cohorts := GroupCohorts(subs)
	if len(cohorts) != 2 {
		t.Fatalf("wildcard and concrete filters must not merge, got %d cohorts", len(cohorts))
	}
}

func TestGroupCohortsEmpty(t *testing.T) {
	if got := GroupCohorts(nil); len(got) != 0 {
		t.Errorf("expected no cohorts, got %d", len(got))
	}
}
