// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package feed

import (
	"testing"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string // canonical YYYY-MM-DD, "" = absent
	}{
		{"2025-01-15", "2025-01-15"},
		{"01/15/2025", "2025-01-15"},
		{"1/5/2025", "2025-01-05"},
		{"2025-01-15T08:30:00", "2025-01-15"},
		{"2025-01-15T08:30:00Z", "2025-01-15"},
		{"2025-01-15 08:30:00", "2025-01-15"},
		{"01/15/2025 08:30:00", "2025-01-15"},
		{"Jan 15, 2025", "2025-01-15"},
		{"January 15, 2025", "2025-01-15"},
		{"15 Jan 2025", "2025-01-15"},
		{"  2025-01-15  ", "2025-01-15"},
		{"", ""},
		{"   ", ""},
		{"not a date", ""},
		{"2025-13-45", ""},
		{"13/45/2025", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseDate(tt.in)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ParseDate(%q) = %v, want absent", tt.in, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseDate(%q) = absent, want %s", tt.in, tt.want)
			}
			if FormatDate(got) != tt.want {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.in, FormatDate(got), tt.want)
			}
			if h, m, s := got.Clock(); h != 0 || m != 0 || s != 0 {
				t.Errorf("ParseDate(%q) kept a time component: %v", tt.in, got)
			}
		})
	}
}

func TestFormatDateAbsent(t *testing.T) {
	if got := FormatDate(nil); got != "" {
		t.Errorf("FormatDate(nil) = %q, want empty", got)
	}
}
