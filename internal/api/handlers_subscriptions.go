// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/permitwatch/permitwatch/internal/database"
	"github.com/permitwatch/permitwatch/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs go-playground validation and flattens the result into
// a single client-facing message.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("field %q failed validation rule %q", fe.Field(), fe.Tag())
	}
	return err
}

// subscriptionRequest is the create/update payload. Filters default to the
// wildcard values when omitted, matching the original signup form behavior.
type subscriptionRequest struct {
	Email           string `json:"email" validate:"required,email"`
	DisplayName     string `json:"display_name" validate:"max=200"`
	CityFilter      string `json:"city_filter" validate:"max=200"`
	WorkClassFilter string `json:"work_class_filter" validate:"max=200"`
	Frequency       string `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	Active          *bool  `json:"active"`
}

func (req *subscriptionRequest) applyDefaults() {
	if req.CityFilter == "" {
		req.CityFilter = models.AllCities
	}
	if req.WorkClassFilter == "" {
		req.WorkClassFilter = models.AllWorkClasses
	}
	if req.Frequency == "" {
		req.Frequency = string(models.FrequencyDaily)
	}
}

// ListSubscriptions returns all subscriptions, newest first.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	subs, err := h.subs.ListSubscriptions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to list subscriptions", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"subscriptions": subs,
		"count":         len(subs),
	}, started)
}

// GetSubscription returns one subscription by id.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	sub, err := h.subs.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Subscription not found", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to load subscription", err)
		return
	}

	respondSuccess(w, http.StatusOK, sub, started)
}

// CreateSubscription registers a new digest subscription.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req subscriptionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", err)
		return
	}
	if err := validateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	}
	req.applyDefaults()

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	sub := &models.Subscription{
		Email:           req.Email,
		DisplayName:     req.DisplayName,
		CityFilter:      req.CityFilter,
		WorkClassFilter: req.WorkClassFilter,
		Frequency:       models.Frequency(req.Frequency),
		Active:          active,
	}
	if err := h.subs.CreateSubscription(r.Context(), sub); err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to create subscription", err)
		return
	}

	respondSuccess(w, http.StatusCreated, sub, started)
}

// UpdateSubscription replaces the mutable fields of a subscription.
// LastSent is owned by the digest pipeline and never settable here.
func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	var req subscriptionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", err)
		return
	}
	if err := validateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	}
	req.applyDefaults()

	existing, err := h.subs.GetSubscription(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Subscription not found", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to load subscription", err)
		return
	}

	existing.Email = req.Email
	existing.DisplayName = req.DisplayName
	existing.CityFilter = req.CityFilter
	existing.WorkClassFilter = req.WorkClassFilter
	existing.Frequency = models.Frequency(req.Frequency)
	if req.Active != nil {
		existing.Active = *req.Active
	}

	if err := h.subs.UpdateSubscription(r.Context(), existing); err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to update subscription", err)
		return
	}

	respondSuccess(w, http.StatusOK, existing, started)
}

// DeleteSubscription removes a subscription permanently.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	id := chi.URLParam(r, "id")

	err := h.subs.DeleteSubscription(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Subscription not found", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to delete subscription", err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]string{"deleted": id}, started)
}
