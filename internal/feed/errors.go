// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package feed

import "errors"

var (
	// ErrFetchFailed marks feed retrieval failures: network errors, non-2xx
	// responses, or an open circuit breaker. The run aborts with no partial
	// writes for the affected city.
	ErrFetchFailed = errors.New("feed fetch failed")

	// ErrFeedCorrupt marks a feed body that cannot be decoded as CSV at all.
	// Individual malformed rows are skipped, not escalated to this error.
	ErrFeedCorrupt = errors.New("feed corrupt")

	// ErrUnknownCity is returned when ingestion is requested for a city with
	// no configured feed source.
	ErrUnknownCity = errors.New("unknown city")
)
