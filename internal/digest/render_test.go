// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/permitwatch/permitwatch/internal/models"
)

func TestRender(t *testing.T) {
	issued := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	permits := []models.Permit{
		{
			PermitID:   "2026-001",
			City:       "Austin, TX",
			PermitType: "Building Permit",
			WorkClass:  "Repair",
			Location:   "123 Main St",
			Contractor: "ACME Builders",
			IssuedDate: &issued,
		},
		{
			PermitID: "2026-002",
			City:     "Austin, TX",
		},
	}
	key := models.CohortKey{CityFilter: "Austin, TX", WorkClassFilter: models.AllWorkClasses}
	now := time.Date(2026, 8, 28, 7, 0, 0, 0, time.UTC)

	digest, err := Render(key, permits, now)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.Contains(digest.Subject, "2 new permits") {
		t.Errorf("subject = %q", digest.Subject)
	}
	if !strings.Contains(digest.Subject, "Austin, TX") {
		t.Errorf("subject missing city: %q", digest.Subject)
	}

	for _, want := range []string{"2026-001", "123 Main St", "ACME Builders", "2026-08-15", "2026-002"} {
		if !strings.Contains(digest.BodyHTML, want) {
			t.Errorf("HTML body missing %q", want)
		}
		if !strings.Contains(digest.BodyText, want) {
			t.Errorf("text body missing %q", want)
		}
	}
	if !strings.Contains(digest.BodyHTML, "2026-08-28") {
		t.Error("HTML body missing run date")
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	permits := []models.Permit{
		{PermitID: "X-1", City: "Austin, TX", Contractor: `<script>alert("x")</script>`},
	}
	key := models.CohortKey{CityFilter: models.AllCities, WorkClassFilter: models.AllWorkClasses}

	digest, err := Render(key, permits, time.Now())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(digest.BodyHTML, "<script>") {
		t.Error("feed-sourced content must be HTML-escaped")
	}
	if !strings.Contains(digest.BodyHTML, "&lt;script&gt;") {
		t.Error("expected escaped script tag in HTML body")
	}
}
