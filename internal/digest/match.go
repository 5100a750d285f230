// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package digest

import (
	"strings"

	"github.com/permitwatch/permitwatch/internal/models"
)

// Matches reports whether a permit belongs in a cohort's digest.
//
// The two filter axes are independent: the city filter is either the
// AllCities wildcard or must equal the permit's city, likewise for work
// class. Comparison is case-insensitive so feed-side casing drift does not
// silently empty a cohort's digest.
func Matches(permit *models.Permit, key models.CohortKey) bool {
	if key.CityFilter != models.AllCities &&
		!strings.EqualFold(key.CityFilter, permit.City) {
		return false
	}
	if key.WorkClassFilter != models.AllWorkClasses &&
		!strings.EqualFold(key.WorkClassFilter, permit.WorkClass) {
		return false
	}
	return true
}

// FilterPermits returns the permits matching the cohort key, preserving
// input order.
func FilterPermits(permits []models.Permit, key models.CohortKey) []models.Permit {
	matched := make([]models.Permit, 0)
	for i := range permits {
		if Matches(&permits[i], key) {
			matched = append(matched, permits[i])
		}
	}
	return matched
}
