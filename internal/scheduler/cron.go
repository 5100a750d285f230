// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package scheduler runs the recurring ingestion and digest jobs on cron
// schedules.
//
// Next-run times are computed explicitly from the parsed expression rather
// than by sleeping until the target, so tests can drive the scheduler with a
// fake clock and jobs fire exactly once per matching minute.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fieldSet is one parsed cron field: the set of accepted values plus whether
// the field was the "*" wildcard (day fields need that distinction).
type fieldSet struct {
	values   map[int]bool
	wildcard bool
}

func (f fieldSet) contains(v int) bool { return f.values[v] }

// Schedule is a parsed standard 5-field cron expression:
// minute hour day-of-month month day-of-week.
type Schedule struct {
	minute     fieldSet
	hour       fieldSet
	dayOfMonth fieldSet
	month      fieldSet
	dayOfWeek  fieldSet
}

// Parse parses a 5-field cron expression.
//
// Supported per-field syntax: "*", "n", "n-m", "a,b,c", "*/s", "n-m/s".
// Day-of-week accepts 0-7 with both 0 and 7 meaning Sunday.
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	specs := []struct {
		name     string
		min, max int
	}{
		{"minute", 0, 59},
		{"hour", 0, 23},
		{"day-of-month", 1, 31},
		{"month", 1, 12},
		{"day-of-week", 0, 7},
	}

	parsed := make([]fieldSet, 5)
	for i, spec := range specs {
		fs, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field %q: %w", spec.name, fields[i], err)
		}
		parsed[i] = fs
	}

	// Cron treats 7 as Sunday; fold it into 0.
	if parsed[4].values[7] {
		delete(parsed[4].values, 7)
		parsed[4].values[0] = true
	}

	return &Schedule{
		minute:     parsed[0],
		hour:       parsed[1],
		dayOfMonth: parsed[2],
		month:      parsed[3],
		dayOfWeek:  parsed[4],
	}, nil
}

// Matches reports whether the schedule fires at the given minute.
func (s *Schedule) Matches(t time.Time) bool {
	if !s.minute.contains(t.Minute()) || !s.hour.contains(t.Hour()) || !s.month.contains(int(t.Month())) {
		return false
	}

	domMatch := s.dayOfMonth.contains(t.Day())
	dowMatch := s.dayOfWeek.contains(int(t.Weekday()))

	// Standard cron: when both day fields are restricted, either may match;
	// a wildcard field defers to the other.
	switch {
	case s.dayOfMonth.wildcard && s.dayOfWeek.wildcard:
		return true
	case s.dayOfMonth.wildcard:
		return dowMatch
	case s.dayOfWeek.wildcard:
		return domMatch
	default:
		return domMatch || dowMatch
	}
}

// Next returns the first firing time strictly after t, at minute resolution
// in t's location. Valid schedules always fire within four years; the zero
// time is returned only if the search space is exhausted.
func (s *Schedule) Next(t time.Time) time.Time {
	next := t.Truncate(time.Minute).Add(time.Minute)
	next = time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), next.Minute(), 0, 0, t.Location())

	const maxMinutes = 4 * 366 * 24 * 60
	for i := 0; i < maxMinutes; i++ {
		if s.Matches(next) {
			return next
		}
		next = next.Add(time.Minute)
	}
	return time.Time{}
}

// parseField parses one cron field into its accepted value set.
func parseField(field string, minVal, maxVal int) (fieldSet, error) {
	fs := fieldSet{values: make(map[int]bool)}
	if field == "*" {
		fs.wildcard = true
		for v := minVal; v <= maxVal; v++ {
			fs.values[v] = true
		}
		return fs, nil
	}

	for _, part := range strings.Split(field, ",") {
		if err := parsePart(part, minVal, maxVal, fs.values); err != nil {
			return fieldSet{}, err
		}
	}
	if len(fs.values) == 0 {
		return fieldSet{}, fmt.Errorf("empty field")
	}
	return fs, nil
}

// parsePart handles a single list element: value, range, or stepped range.
func parsePart(part string, minVal, maxVal int, out map[int]bool) error {
	step := 1
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		var err error
		step, err = strconv.Atoi(part[idx+1:])
		if err != nil || step <= 0 {
			return fmt.Errorf("invalid step %q", part[idx+1:])
		}
		part = part[:idx]
	}

	start, end := minVal, maxVal
	switch {
	case part == "*":
		// full range
	case strings.Contains(part, "-"):
		bounds := strings.SplitN(part, "-", 2)
		var err error
		if start, err = strconv.Atoi(bounds[0]); err != nil {
			return fmt.Errorf("invalid range start %q", bounds[0])
		}
		if end, err = strconv.Atoi(bounds[1]); err != nil {
			return fmt.Errorf("invalid range end %q", bounds[1])
		}
		if start > end {
			return fmt.Errorf("range start %d after end %d", start, end)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid value %q", part)
		}
		start, end = v, v
		// A bare value with a step ("6/2") extends to the field maximum.
		if step > 1 {
			end = maxVal
		}
	}

	if start < minVal || end > maxVal {
		return fmt.Errorf("value out of range %d-%d", minVal, maxVal)
	}
	for v := start; v <= end; v += step {
		out[v] = true
	}
	return nil
}

// NextAfter parses expr and returns its first firing after t in the given
// timezone (empty means UTC).
func NextAfter(expr string, t time.Time, timezone string) (time.Time, error) {
	schedule, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
	}
	return schedule.Next(t.In(loc)), nil
}
