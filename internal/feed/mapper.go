// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package feed fetches municipal open-data CSV feeds and turns their rows
// into canonical permits.
//
// Municipal portals rename and re-case columns between feed revisions, so the
// mapper works off ordered alias lists per canonical field rather than fixed
// positions. Rows without a recognizable permit id carry no identity and are
// rejected.
package feed

import (
	"strings"

	"github.com/permitwatch/permitwatch/internal/models"
)

// fieldAliases maps each canonical permit field to the source column names
// observed across feed revisions, in preference order. Lookup is performed on
// normalized keys, so "Permit Number", "permit_number" and "PERMIT NUMBER"
// all collapse to the same alias.
var fieldAliases = map[string][]string{
	"permit_id":        {"permit number", "permit_number", "permit id", "permit no"},
	"permit_type":      {"permit type", "permit_type", "permit type desc"},
	"work_class":       {"work class", "work_class", "work type"},
	"issued_date":      {"issued date", "issued_date", "issue date"},
	"applied_date":     {"applied date", "applied_date", "application date"},
	"zip_code":         {"zip code", "zip_code", "zip", "original zip"},
	"district":         {"council district", "district", "council_district"},
	"square_footage":   {"sq ft", "sqft", "square footage", "total sq ft"},
	"location":         {"location", "address", "project address", "original address 1"},
	"contractor":       {"contractor name", "contractor", "contractor company name"},
	"valuation_amount": {"valuation", "validation", "total valuation", "declared value"},
}

// normalizeKey collapses casing, surrounding space and underscore/space
// variation so alias lookup is insensitive to feed-revision formatting.
func normalizeKey(key string) string {
	key = strings.TrimSpace(strings.ToLower(key))
	key = strings.ReplaceAll(key, "_", " ")
	for strings.Contains(key, "  ") {
		key = strings.ReplaceAll(key, "  ", " ")
	}
	return key
}

// normalizeRow re-keys a raw row by normalized column name. On collisions the
// first non-empty value wins, matching the "first alias present wins" rule.
func normalizeRow(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		nk := normalizeKey(k)
		if existing, ok := out[nk]; !ok || existing == "" {
			out[nk] = strings.TrimSpace(v)
		}
	}
	return out
}

// lookupField returns the first non-empty value among the field's aliases.
func lookupField(row map[string]string, field string) string {
	for _, alias := range fieldAliases[field] {
		if v := row[alias]; v != "" {
			return v
		}
	}
	return ""
}

// MapRow converts one raw CSV row into a canonical permit for the given city.
// Returns false when the row has no permit id under any known alias; such a
// row has no identity and cannot be stored or deduplicated.
func MapRow(raw map[string]string, city string) (models.Permit, bool) {
	row := normalizeRow(raw)

	permitID := lookupField(row, "permit_id")
	if permitID == "" {
		return models.Permit{}, false
	}

	return models.Permit{
		PermitID:        permitID,
		City:            city,
		PermitType:      lookupField(row, "permit_type"),
		WorkClass:       lookupField(row, "work_class"),
		ZipCode:         lookupField(row, "zip_code"),
		District:        lookupField(row, "district"),
		SquareFootage:   lookupField(row, "square_footage"),
		Location:        lookupField(row, "location"),
		Contractor:      lookupField(row, "contractor"),
		ValuationAmount: lookupField(row, "valuation_amount"),
		IssuedDate:      ParseDate(lookupField(row, "issued_date")),
		AppliedDate:     ParseDate(lookupField(row, "applied_date")),
	}, true
}
