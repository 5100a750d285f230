// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package feed

import (
	"testing"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Permit Number", "permit number"},
		{"permit_number", "permit number"},
		{"  PERMIT  NUMBER  ", "permit number"},
		{"Council_District", "council district"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeKey(tt.in); got != tt.want {
			t.Errorf("normalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapRowAliases(t *testing.T) {
	tests := []struct {
		name string
		row  map[string]string
		want string // expected PermitID
	}{
		{
			name: "title case headers",
			row:  map[string]string{"Permit Number": "2026-001234"},
			want: "2026-001234",
		},
		{
			name: "snake case headers",
			row:  map[string]string{"permit_number": "2026-001234"},
			want: "2026-001234",
		},
		{
			name: "upper case with spacing",
			row:  map[string]string{"  PERMIT NUMBER ": "2026-001234"},
			want: "2026-001234",
		},
		{
			name: "secondary alias",
			row:  map[string]string{"Permit No": "2026-001234"},
			want: "2026-001234",
		},
		{
			name: "first non-empty alias wins",
			row:  map[string]string{"Permit Number": "", "permit id": "2026-005678"},
			want: "2026-005678",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			permit, ok := MapRow(tt.row, "Austin, TX")
			if !ok {
				t.Fatal("expected row to be accepted")
			}
			if permit.PermitID != tt.want {
				t.Errorf("PermitID = %q, want %q", permit.PermitID, tt.want)
			}
			if permit.City != "Austin, TX" {
				t.Errorf("City = %q, want Austin, TX", permit.City)
			}
		})
	}
}

func TestMapRowRejectsMissingPermitID(t *testing.T) {
	rows := []map[string]string{
		{},
		{"Permit Type": "Building Permit", "Work Class": "Residential"},
		{"Permit Number": "", "permit_number": "   "},
	}
	for i, row := range rows {
		if _, ok := MapRow(row, "Austin, TX"); ok {
			t.Errorf("row %d: expected rejection for missing permit id", i)
		}
	}
}

func TestMapRowFullRecord(t *testing.T) {
	row := map[string]string{
		"Permit Number":    "2026-001234",
		"Permit Type":      "Building Permit",
		"Work Class":       "Residential",
		"Issued Date":      "2026-08-15",
		"Applied Date":     "01/10/2026",
		"Zip Code":         "78701",
		"Council District": "9",
		"Sq Ft":            "2400",
		"Location":         "123 Main St",
		"Contractor Name":  "ACME Builders",
		"Valuation":        "150000",
	}

	permit, ok := MapRow(row, "Austin, TX")
	if !ok {
		t.Fatal("expected row to be accepted")
	}

	if permit.PermitType != "Building Permit" {
		t.Errorf("PermitType = %q", permit.PermitType)
	}
	if permit.WorkClass != "Residential" {
		t.Errorf("WorkClass = %q", permit.WorkClass)
	}
	if permit.ZipCode != "78701" {
		t.Errorf("ZipCode = %q", permit.ZipCode)
	}
	if permit.District != "9" {
		t.Errorf("District = %q", permit.District)
	}
	if permit.SquareFootage != "2400" {
		t.Errorf("SquareFootage = %q", permit.SquareFootage)
	}
	if permit.Contractor != "ACME Builders" {
		t.Errorf("Contractor = %q", permit.Contractor)
	}
	if permit.ValuationAmount != "150000" {
		t.Errorf("ValuationAmount = %q", permit.ValuationAmount)
	}
	if FormatDate(permit.IssuedDate) != "2026-08-15" {
		t.Errorf("IssuedDate = %q, want 2026-08-15", FormatDate(permit.IssuedDate))
	}
	if FormatDate(permit.AppliedDate) != "2026-01-10" {
		t.Errorf("AppliedDate = %q, want 2026-01-10", FormatDate(permit.AppliedDate))
	}
}

func TestMapRowMissingFieldsAreAbsent(t *testing.T) {
	permit, ok := MapRow(map[string]string{"Permit Number": "X-1"}, "Austin, TX")
	if !ok {
		t.Fatal("expected row to be accepted")
	}
	if permit.PermitType != "" || permit.WorkClass != "" || permit.Contractor != "" {
		t.Error("expected unmapped fields to stay empty")
	}
	if permit.IssuedDate != nil || permit.AppliedDate != nil {
		t.Error("expected absent dates to be nil")
	}
}
