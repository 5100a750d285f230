// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

// Package api provides the HTTP query and administration surface.
//
// All endpoints return the models.APIResponse envelope except the CSV export,
// which streams text/csv. The API is read-mostly: the permit store is only
// ever appended to through ingestion, and the single mutating permit endpoint
// (POST /permits/scrape) triggers that same ingestion path synchronously.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/permitwatch/permitwatch/internal/config"
	"github.com/permitwatch/permitwatch/internal/database"
	"github.com/permitwatch/permitwatch/internal/feed"
	"github.com/permitwatch/permitwatch/internal/models"
)

// PermitStore is the read side of the permit database the handlers need.
type PermitStore interface {
	QueryPermits(ctx context.Context, filter database.PermitFilter) ([]models.Permit, error)
	CountPermits(ctx context.Context, filter database.PermitFilter) (int64, error)
	GetStats(ctx context.Context) (*models.PermitStats, error)
}

// SubscriptionStore is the subscription CRUD surface.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
}

// Ingestor triggers a synchronous on-demand feed run.
type Ingestor interface {
	IngestCity(ctx context.Context, city string) (*models.IngestResult, error)
	Sample(result *models.IngestResult) []models.Permit
}

// Pinger reports store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	permits  PermitStore
	subs     SubscriptionStore
	ingestor Ingestor
	pinger   Pinger
}

// NewHandler creates the API handler set.
func NewHandler(cfg *config.Config, permits PermitStore, subs SubscriptionStore, ingestor Ingestor, pinger Pinger) *Handler {
	return &Handler{
		cfg:      cfg,
		permits:  permits,
		subs:     subs,
		ingestor: ingestor,
		pinger:   pinger,
	}
}

// Health reports process and store health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	status := "healthy"
	httpStatus := http.StatusOK
	var dbErr string
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			dbErr = err.Error()
		}
	}

	respondSuccess(w, httpStatus, map[string]interface{}{
		"status":         status,
		"database_error": dbErr,
	}, started)
}

// Permits lists permits filtered by query parameters, newest-ingested first.
func (h *Handler) Permits(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	limit, offset := clampPage(
		getIntParam(r, "limit", h.cfg.API.DefaultPageSize),
		getIntParam(r, "offset", 0),
		h.cfg.API.DefaultPageSize,
		h.cfg.API.MaxPageSize,
	)

	filter := database.PermitFilter{
		City:       getStringParam(r, "city"),
		WorkClass:  getStringParam(r, "work_class"),
		Contractor: getStringParam(r, "contractor"),
		Search:     getStringParam(r, "search"),
		Limit:      limit,
		Offset:     offset,
	}

	permits, err := h.permits.QueryPermits(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to query permits", err)
		return
	}
	total, err := h.permits.CountPermits(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to count permits", err)
		return
	}

	respondSuccess(w, http.StatusOK, &models.PermitsResponse{
		Permits: permits,
		Count:   len(permits),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, started)
}

// PermitStats returns store totals, per-city counts and top work classes.
func (h *Handler) PermitStats(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	stats, err := h.permits.GetStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeDatabaseError, "Failed to compute stats", err)
		return
	}

	respondSuccess(w, http.StatusOK, stats, started)
}

// scrapeRequest is the POST /permits/scrape payload.
type scrapeRequest struct {
	City string `json:"city" validate:"required"`
}

// Scrape runs a synchronous feed ingestion for one configured city.
//
// A feed that goes corrupt mid-stream still persists the rows decoded before
// the failure; the response carries that partial result.
func (h *Handler) Scrape(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req scrapeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body", err)
		return
	}
	if err := validateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeValidationFailed, err.Error(), nil)
		return
	}

	result, err := h.ingestor.IngestCity(r.Context(), req.City)
	switch {
	case errors.Is(err, feed.ErrUnknownCity):
		respondError(w, http.StatusBadRequest, ErrCodeUnknownCity, "City is not configured for ingestion", err)
		return
	case errors.Is(err, feed.ErrFetchFailed):
		respondError(w, http.StatusBadGateway, ErrCodeFeedUnavailable, "Feed could not be retrieved", err)
		return
	case err != nil && result == nil:
		respondError(w, http.StatusBadGateway, ErrCodeFeedCorrupt, "Feed could not be decoded", err)
		return
	}

	payload := &models.ScrapeResponse{
		City:          result.City,
		AcceptedCount: result.AcceptedCount(),
		RejectedCount: result.Rejected,
		Sample:        h.ingestor.Sample(result),
	}

	respondSuccess(w, http.StatusOK, payload, started)
}
