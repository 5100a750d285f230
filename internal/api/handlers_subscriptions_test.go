// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package api

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"

	"github.com/permitwatch/permitwatch/internal/models"
)

func decodeSub(t *testing.T, data json.RawMessage) models.Subscription {
	t.Helper()
	var sub models.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		t.Fatalf("decode subscription: %v", err)
	}
	return sub
}

func TestCreateSubscriptionDefaults(t *testing.T) {
	env := newTestEnv(t)

	status, body := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/subscriptions",
		`{"email":"jordan@example.com"}`)
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want 201", status)
	}

	sub := decodeSub(t, body.Data)
	if sub.ID == "" {
		t.Error("created subscription has no id")
	}
	if sub.CityFilter != models.AllCities || sub.WorkClassFilter != models.AllWorkClasses {
		t.Errorf("filters = %q/%q, want wildcards", sub.CityFilter, sub.WorkClassFilter)
	}
	if sub.Frequency != models.FrequencyDaily {
		t.Errorf("frequency = %q, want daily", sub.Frequency)
	}
	if !sub.Active {
		t.Error("new subscription should default to active")
	}
	if sub.LastSent != nil {
		t.Error("new subscription must have nil last_sent")
	}
}

func TestCreateSubscriptionValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{}`},
		{"bad email", `{"email":"not-an-email"}`},
		{"bad frequency", `{"email":"a@example.com","frequency":"hourly"}`},
		{"unknown field", `{"email":"a@example.com","last_sent":"2026-01-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		status, body := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/subscriptions", tt.body)
		if status != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, status)
		}
		if body.Error == nil {
			t.Errorf("%s: missing error payload", tt.name)
		}
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	env := newTestEnv(t)

	status, body := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/subscriptions/nope", "")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if body.Error == nil || body.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	_, created := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/subscriptions",
		`{"email":"casey@example.com","city_filter":"Austin, TX","work_class_filter":"Residential","frequency":"weekly"}`)
	sub := decodeSub(t, created.Data)

	status, got := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/subscriptions/"+sub.ID, "")
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	if fetched := decodeSub(t, got.Data); fetched.CityFilter != "Austin, TX" {
		t.Errorf("fetched = %+v", fetched)
	}

	status, updated := doJSON(t, http.MethodPut, env.server.URL+"/api/v1/subscriptions/"+sub.ID,
		`{"email":"casey@example.com","city_filter":"Seattle, WA","frequency":"daily","active":false}`)
	if status != http.StatusOK {
		t.Fatalf("update status = %d", status)
	}
	after := decodeSub(t, updated.Data)
	if after.CityFilter != "Seattle, WA" || after.Active {
		t.Errorf("after update = %+v", after)
	}
	// Omitted work class filter resets to the wildcard.
	if after.WorkClassFilter != models.AllWorkClasses {
		t.Errorf("work class filter = %q", after.WorkClassFilter)
	}

	status, _ = doJSON(t, http.MethodDelete, env.server.URL+"/api/v1/subscriptions/"+sub.ID, "")
	if status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	status, _ = doJSON(t, http.MethodGet, env.server.URL+"/api/v1/subscriptions/"+sub.ID, "")
	if status != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", status)
	}
}

func TestUpdateSubscriptionNotFound(t *testing.T) {
	env := newTestEnv(t)

	status, _ := doJSON(t, http.MethodPut, env.server.URL+"/api/v1/subscriptions/ghost",
		`{"email":"a@example.com"}`)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestDeleteSubscriptionNotFound(t *testing.T) {
	env := newTestEnv(t)

	status, _ := doJSON(t, http.MethodDelete, env.server.URL+"/api/v1/subscriptions/ghost", "")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestListSubscriptions(t *testing.T) {
	env := newTestEnv(t)
	doJSON(t, http.MethodPost, env.server.URL+"/api/v1/subscriptions", `{"email":"a@example.com"}`)
	doJSON(t, http.MethodPost, env.server.URL+"/api/v1/subscriptions", `{"email":"b@example.com"}`)

	status, body := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/subscriptions", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var payload struct {
		Subscriptions []models.Subscription `json:"subscriptions"`
		Count         int                   `json:"count"`
	}
	if err := json.Unmarshal(body.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 2 || len(payload.Subscriptions) != 2 {
		t.Errorf("payload = %+v", payload)
	}
}
