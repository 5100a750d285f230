// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package digest computes and dispatches permit digests.
//
// A digest run is: snapshot active subscriptions, group them into cohorts by
// exact (city filter, work class filter) pair, select recently ingested
// permits per cohort, render one digest per non-empty cohort and dispatch it
// once to all members. Cohorts are derived fresh each run and never stored.
package digest

import (
	"sort"

	"github.com/permitwatch/permitwatch/internal/models"
)

// GroupCohorts partitions subscriptions into cohorts keyed by their exact
// filter pair. Wildcards are values like any other here: ("All Cities",
// "Repair") is its own cohort, distinct from ("Austin, TX", "Repair").
//
// Cohorts are ordered deterministically (city filter, then work class filter)
// and members keep their input order, so a run's dispatch order is stable.
func GroupCohorts(subs []models.Subscription) []models.Cohort {
	byKey := make(map[models.CohortKey]*models.Cohort)
	for _, sub := range subs {
		key := models.CohortKey{
			CityFilter:      sub.CityFilter,
			WorkClassFilter: sub.WorkClassFilter,
		}
		cohort, ok := byKey[key]
		if !ok {
			cohort = &models.Cohort{Key: key}
			byKey[key] = cohort
		}
		cohort.Members = append(cohort.Members, sub)
	}

	cohorts := make([]models.Cohort, 0, len(byKey))
	for _, cohort := range byKey {
		cohorts = append(cohorts, *cohort)
	}
	sort.Slice(cohorts, func(i, j int) bool {
		if cohorts[i].Key.CityFilter != cohorts[j].Key.CityFilter {
			return cohorts[i].Key.CityFilter < cohorts[j].Key.CityFilter
		}
		return cohorts[i].Key.WorkClassFilter < cohorts[j].Key.WorkClassFilter
	})
	return cohorts
}
