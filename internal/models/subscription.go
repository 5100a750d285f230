// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package models

import (
	"time"
)

// Wildcard filter values. A subscription carrying one of these matches every
// permit on that axis; the two axes are independent.
const (
	// AllCities matches permits from any configured city feed.
	AllCities = "All Cities"

	// AllWorkClasses matches permits of any work class.
	AllWorkClasses = "All Types"
)

// Frequency is the subscriber-requested digest cadence.
//
// The value is stored and surfaced through the API, but the scheduler
// currently runs a single daily digest pass regardless of it.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ValidFrequencies contains all accepted frequency values.
var ValidFrequencies = []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly}

// IsValidFrequency checks if a frequency value is accepted.
func IsValidFrequency(f Frequency) bool {
	for _, valid := range ValidFrequencies {
		if f == valid {
			return true
		}
	}
	return false
}

// Subscription is a standing request for permit digests.
//
// CityFilter and WorkClassFilter combined with Active define the cohort the
// subscription belongs to. LastSent is the only field the digest pipeline
// mutates, and only after a confirmed successful dispatch.
type Subscription struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`

	// CityFilter is a specific city or the AllCities wildcard.
	CityFilter string `json:"city_filter"`

	// WorkClassFilter is a specific work class or the AllWorkClasses wildcard.
	WorkClassFilter string `json:"work_class_filter"`

	Frequency Frequency `json:"frequency"`
	Active    bool      `json:"active"`

	CreatedAt time.Time  `json:"created_at"`
	LastSent  *time.Time `json:"last_sent,omitempty"`
}

// CohortKey identifies a digest cohort: the exact (city filter, work class
// filter) pair shared by its member subscriptions.
type CohortKey struct {
	CityFilter      string `json:"city_filter"`
	WorkClassFilter string `json:"work_class_filter"`
}

// Cohort groups active subscriptions with identical filter criteria so each
// digest run computes and sends one message per distinct filter pair.
// Cohorts are derived fresh on every run and never persisted.
type Cohort struct {
	Key     CohortKey      `json:"key"`
	Members []Subscription `json:"members"`
}

// Recipients returns the member email addresses in member order.
func (c *Cohort) Recipients() []string {
	emails := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		emails = append(emails, m.Email)
	}
	return emails
}
