// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package database

import (
	"strings"
	"time"
)

// PermitFilter narrows permit queries. Zero values mean "no constraint on
// this axis". All text matches are case-insensitive.
type PermitFilter struct {
	// City matches the permit's city label exactly (case-insensitive).
	City string

	// WorkClass matches the permit's work class exactly (case-insensitive).
	WorkClass string

	// Contractor is a substring match against the contractor field.
	Contractor string

	// Search is a substring match across location, contractor and permit id.
	Search string

	// IngestedAfter keeps only permits ingested strictly after this instant.
	IngestedAfter time.Time

	// Limit and Offset page the result. Limit <= 0 means no limit.
	Limit  int
	Offset int
}

// buildConditions translates a filter into a WHERE fragment and its
// positional arguments. Returns an empty string when nothing is constrained.
// Kept free of database handles so it is testable as a pure function.
func buildConditions(f PermitFilter) (string, []any) {
	var conditions []string
	var args []any

	if f.City != "" {
		conditions = append(conditions, "LOWER(city) = LOWER(?)")
		args = append(args, f.City)
	}
	if f.WorkClass != "" {
		conditions = append(conditions, "LOWER(work_class) = LOWER(?)")
		args = append(args, f.WorkClass)
	}
	if f.Contractor != "" {
		conditions = append(conditions, `contractor ILIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Contractor)+"%")
	}
	if f.Search != "" {
		conditions = append(conditions,
			`(location ILIKE ? ESCAPE '\' OR contractor ILIKE ? ESCAPE '\' OR permit_id ILIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(f.Search) + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if !f.IngestedAfter.IsZero() {
		conditions = append(conditions, "ingested_at > ?")
		args = append(args, f.IngestedAfter)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike escapes LIKE metacharacters in user-supplied search terms so a
// literal "%" in a contractor name does not become a wildcard.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
