// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package models provides data structures for the PermitWatch application.
package models

import (
	"time"
)

// Permit is the canonical record for a municipal construction permit.
//
// Identity is the natural key (PermitID, City). A permit is inserted at most
// once; subsequent sightings of the same key are no-ops, never updates. The
// record is immutable after first ingestion; the core never deletes it.
//
// IssuedDate and AppliedDate are calendar dates without a time component.
// A nil value means the source feed did not carry a parseable date, which is
// a valid, expected state rather than an error.
type Permit struct {
	// PermitID is the municipality-assigned permit number.
	PermitID string `json:"permit_id"`

	// City identifies the feed the permit came from, e.g. "Austin, TX".
	City string `json:"city"`

	PermitType      string `json:"permit_type,omitempty"`
	WorkClass       string `json:"work_class,omitempty"`
	ZipCode         string `json:"zip_code,omitempty"`
	District        string `json:"district,omitempty"`
	SquareFootage   string `json:"square_footage,omitempty"`
	Location        string `json:"location,omitempty"`
	Contractor      string `json:"contractor,omitempty"`
	ValuationAmount string `json:"valuation_amount,omitempty"`

	IssuedDate  *time.Time `json:"issued_date,omitempty"`
	AppliedDate *time.Time `json:"applied_date,omitempty"`

	// IngestedAt is set by the store at insertion and never changes.
	IngestedAt time.Time `json:"ingested_at"`
}

// PermitStats summarizes the permit store for the dashboard stats endpoint.
type PermitStats struct {
	TotalPermits   int64            `json:"total_permits"`
	Cities         []CityCount      `json:"cities"`
	TopWorkClasses []WorkClassCount `json:"top_work_classes"`
}

// CityCount is a per-city permit tally.
type CityCount struct {
	City  string `json:"city"`
	Count int64  `json:"count"`
}

// WorkClassCount is a per-work-class permit tally.
type WorkClassCount struct {
	WorkClass string `json:"work_class"`
	Count     int64  `json:"count"`
}

// IngestResult reports the outcome of one feed ingestion run for one city.
type IngestResult struct {
	// City the run ingested.
	City string `json:"city"`

	// Accepted holds the permits persisted by this run, in feed order.
	// Rows already present in the store (by natural key) are not included.
	Accepted []Permit `json:"accepted"`

	// Rejected counts rows skipped for lacking a permit id.
	Rejected int `json:"rejected"`

	// Duplicates counts rows skipped because the natural key already existed.
	Duplicates int `json:"duplicates"`
}

// AcceptedCount returns the number of newly persisted permits.
func (r *IngestResult) AcceptedCount() int {
	return len(r.Accepted)
}
